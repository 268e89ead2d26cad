package cache

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	documentPrefix = "doc:"
	trackPrefix    = "track:"
	fencePrefix    = "fence:doc:"
	// ListPrefix namespaces cached list pages.
	ListPrefix = "docs:list:"
	// ListGenerationKey holds the generation every list key is built under.
	// Bumping it orphans pages stored by readers that raced an invalidation.
	ListGenerationKey = "fence:lists"
)

// DocumentPrefix covers every key derived from one document.
func DocumentPrefix(id uuid.UUID) string {
	return documentPrefix + id.String()
}

func DocumentKey(id uuid.UUID) string {
	return DocumentPrefix(id) + ":detail"
}

func StatusKey(id uuid.UUID) string {
	return DocumentPrefix(id) + ":status"
}

// FenceKey holds the lowest document version a cached read model may carry.
// It lives outside DocumentPrefix so invalidating a document keeps it.
func FenceKey(id uuid.UUID) string {
	return fencePrefix + id.String()
}

// TrackKey maps a tracking lookup to a document ID. Document numbers are
// case-insensitive but barcodes are not, so a hit must still be checked
// against the resolved document.
func TrackKey(number string) string {
	return trackPrefix + strings.ToUpper(strings.TrimSpace(number))
}

// ListKey builds a key for one page of a filtered listing.
func ListKey(parts ...interface{}) string {
	b := strings.Builder{}
	b.WriteString(ListPrefix)
	for i, p := range parts {
		if i > 0 {
			b.WriteByte('|')
		}
		fmt.Fprint(&b, p)
	}
	return b.String()
}
