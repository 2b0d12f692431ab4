package crop

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Blob is a stored preview payload.
type Blob struct {
	ContentType string
	Data        []byte
}

// BlobStore hands out transient URLs for cropped images. URLs stay valid
// until revoked.
type BlobStore struct {
	prefix string

	mu    sync.Mutex
	blobs map[string]Blob
}

// NewBlobStore returns a store whose URLs are prefix followed by the blob id,
// e.g. "/api/blobs/".
func NewBlobStore(prefix string) *BlobStore {
	return &BlobStore{
		prefix: prefix,
		blobs:  make(map[string]Blob),
	}
}

// Put stores data and returns its URL.
func (s *BlobStore) Put(contentType string, data []byte) string {
	id := uuid.NewString()
	s.mu.Lock()
	s.blobs[id] = Blob{ContentType: contentType, Data: data}
	s.mu.Unlock()
	return s.prefix + id
}

// Get looks up a blob by id, not by URL.
func (s *BlobStore) Get(id string) (Blob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.blobs[id]
	return b, ok
}

// Revoke releases the blob behind url. Unknown URLs are ignored.
func (s *BlobStore) Revoke(url string) {
	id, ok := strings.CutPrefix(url, s.prefix)
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.blobs, id)
	s.mu.Unlock()
}

func (s *BlobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blobs)
}
