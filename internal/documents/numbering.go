package documents

import (
	"fmt"
	"regexp"
	"strconv"
)

var numberPattern = regexp.MustCompile(`^([A-Z]+)-(\d{4})-(\d{4,})$`)

// FormatNumber renders {PREFIX}-{YEAR}-{NNNN}. Sequences past 9999 widen instead
// of wrapping.
func FormatNumber(prefix string, year, sequence int) string {
	return fmt.Sprintf("%s-%d-%04d", prefix, year, sequence)
}

// ParseNumber splits a document number into its parts.
func ParseNumber(number string) (prefix string, year, sequence int, ok bool) {
	m := numberPattern.FindStringSubmatch(number)
	if m == nil {
		return "", 0, 0, false
	}
	year, _ = strconv.Atoi(m[2])
	sequence, _ = strconv.Atoi(m[3])
	return m[1], year, sequence, true
}
