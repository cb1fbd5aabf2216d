package artifact

import (
	"sync"

	"github.com/google/uuid"
)

// RefPrefix marks byte-addressable references handed to the UI.
const RefPrefix = "blob:"

type blob struct {
	data     []byte
	mimeType string
}

// BlobRegistry maps opaque references to in-memory bytes. A reference stays
// readable until revoked; revoking twice is a no-op.
type BlobRegistry struct {
	mu          sync.RWMutex
	blobs       map[string]blob
	revocations int
}

// NewBlobRegistry creates an empty registry.
func NewBlobRegistry() *BlobRegistry {
	return &BlobRegistry{blobs: make(map[string]blob)}
}

// Register stores data and returns its reference.
func (r *BlobRegistry) Register(data []byte, mimeType string) string {
	ref := RefPrefix + uuid.NewString()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blobs[ref] = blob{data: data, mimeType: mimeType}
	return ref
}

// Open returns the bytes behind ref.
func (r *BlobRegistry) Open(ref string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.blobs[ref]
	return b.data, b.mimeType, ok
}

// Revoke releases ref. It reports whether the reference was live.
func (r *BlobRegistry) Revoke(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.blobs[ref]; !ok {
		return false
	}
	delete(r.blobs, ref)
	r.revocations++
	return true
}

// Revocations counts successful revocations.
func (r *BlobRegistry) Revocations() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revocations
}

// Live reports the number of unrevoked references.
func (r *BlobRegistry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.blobs)
}
