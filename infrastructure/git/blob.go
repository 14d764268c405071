package git

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5/plumbing"
)

// BlobHasher computes the git object id of a blob incrementally.
type BlobHasher struct {
	hasher plumbing.Hasher
}

// NewBlobHasher creates a hasher for a blob of size bytes.
func NewBlobHasher(size int64) *BlobHasher {
	return &BlobHasher{hasher: plumbing.NewHasher(plumbing.BlobObject, size)}
}

// Write implements io.Writer.
func (b *BlobHasher) Write(p []byte) (int, error) {
	return b.hasher.Write(p)
}

// OID returns the hex object id of everything written.
func (b *BlobHasher) OID() string {
	return b.hasher.Sum().String()
}

// BlobHash returns the git object id of the size bytes read from r.
func BlobHash(size int64, r io.Reader) (string, error) {
	h := NewBlobHasher(size)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hash blob: %w", err)
	}
	return h.OID(), nil
}
