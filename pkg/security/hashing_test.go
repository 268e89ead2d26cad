package security

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjects map[string]string

func (m memObjects) Download(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	body, ok := m[bucket+"/"+key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func TestDigest_KnownVectors(t *testing.T) {
	tests := []struct {
		alg  Algorithm
		want string
	}{
		{SHA256, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"},
		{SHA3_256, "3a985da74fe225b2045c172d6bd390bd855f086e3e9d525b46bfe24511431532"},
		{BLAKE2b256, "bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319"},
	}
	for _, tt := range tests {
		t.Run(string(tt.alg), func(t *testing.T) {
			got, err := Digest(tt.alg, strings.NewReader("abc"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := Digest("md5", strings.NewReader("abc"))
	assert.Error(t, err)
}

func TestParseAlgorithm(t *testing.T) {
	a, err := ParseAlgorithm(" SHA3-256 ")
	require.NoError(t, err)
	assert.Equal(t, SHA3_256, a)

	a, err = ParseAlgorithm("")
	require.NoError(t, err)
	assert.Equal(t, SHA256, a)

	_, err = ParseAlgorithm("crc32")
	assert.Error(t, err)
}

func TestFileHasher(t *testing.T) {
	objects := memObjects{"doctrack/documents/PR-2026-0001/request.pdf": "abc"}
	h := NewFileHasher(objects, "doctrack", BLAKE2b256)
	ctx := context.Background()

	digest, alg, err := h.Hash(ctx, "documents/PR-2026-0001/request.pdf")
	require.NoError(t, err)
	assert.Equal(t, "blake2b-256", alg)
	assert.Equal(t, "bddd813c634239723171ef3fee98579b94964e3bb1cb3e427262c8c068d52319", digest)

	ok, err := h.Verify(ctx, "documents/PR-2026-0001/request.pdf", "sha256",
		"BA7816BF8F01CFEA414140DE5DAE2223B00361A396177A9CB410FF61F20015AD")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "documents/PR-2026-0001/request.pdf", "sha256", strings.Repeat("0", 64))
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = h.Hash(ctx, "missing.pdf")
	assert.Error(t, err)
}
