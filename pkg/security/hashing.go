package security

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Algorithm names a content digest.
type Algorithm string

const (
	SHA256     Algorithm = "sha256"
	SHA3_256   Algorithm = "sha3-256"
	BLAKE2b256 Algorithm = "blake2b-256"
)

func ParseAlgorithm(s string) (Algorithm, error) {
	switch a := Algorithm(strings.ToLower(strings.TrimSpace(s))); a {
	case SHA256, SHA3_256, BLAKE2b256:
		return a, nil
	case "":
		return SHA256, nil
	default:
		return "", fmt.Errorf("unsupported hash algorithm %q", s)
	}
}

func (a Algorithm) New() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA3_256:
		return sha3.New256(), nil
	case BLAKE2b256:
		return blake2b.New256(nil)
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", a)
	}
}

// Digest hashes r to a lowercase hex string.
func Digest(a Algorithm, r io.Reader) (string, error) {
	h, err := a.New()
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ObjectReader opens stored files.
type ObjectReader interface {
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// FileHasher digests stored document files for signature records.
type FileHasher struct {
	objects   ObjectReader
	bucket    string
	algorithm Algorithm
}

func NewFileHasher(objects ObjectReader, bucket string, algorithm Algorithm) *FileHasher {
	if algorithm == "" {
		algorithm = SHA256
	}
	return &FileHasher{objects: objects, bucket: bucket, algorithm: algorithm}
}

// Hash returns the hex digest of the stored file and the algorithm used.
func (h *FileHasher) Hash(ctx context.Context, key string) (string, string, error) {
	body, err := h.objects.Download(ctx, h.bucket, key)
	if err != nil {
		return "", "", err
	}
	defer body.Close()

	digest, err := Digest(h.algorithm, body)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash %s: %w", key, err)
	}
	return digest, string(h.algorithm), nil
}

// Verify recomputes the digest of key with the recorded algorithm and compares it in
// constant time.
func (h *FileHasher) Verify(ctx context.Context, key, algorithm, expected string) (bool, error) {
	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		return false, err
	}

	body, err := h.objects.Download(ctx, h.bucket, key)
	if err != nil {
		return false, err
	}
	defer body.Close()

	digest, err := Digest(alg, body)
	if err != nil {
		return false, fmt.Errorf("failed to hash %s: %w", key, err)
	}
	return subtle.ConstantTimeCompare([]byte(digest), []byte(strings.ToLower(expected))) == 1, nil
}
