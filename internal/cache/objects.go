package cache

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// HandlePrefix starts every handle minted by an ObjectStore.
const HandlePrefix = "blob:cuecard/"

// ObjectStore owns the bytes behind handles. A handle resolves until it is
// revoked.
type ObjectStore struct {
	mu      sync.RWMutex
	objects map[Handle]object
	created int64
	revoked int64
}

type object struct {
	data []byte
	mime string
}

// NewObjectStore returns an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{
		objects: make(map[Handle]object),
	}
}

// Create stores data and returns a fresh handle for it.
func (s *ObjectStore) Create(data []byte, mime string) (Handle, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to mint handle: %w", err)
	}
	h := Handle(HandlePrefix + id.String())

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[h] = object{data: data, mime: mime}
	s.created++
	return h, nil
}

// Resolve returns the bytes and media type behind h.
func (s *ObjectStore) Resolve(h Handle) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[h]
	return obj.data, obj.mime, ok
}

// Revoke releases h. It reports whether h was live.
func (s *ObjectStore) Revoke(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[h]; !ok {
		return false
	}
	delete(s.objects, h)
	s.revoked++
	return true
}

// Live returns the number of unrevoked handles.
func (s *ObjectStore) Live() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Counts returns how many handles were ever created and revoked.
func (s *ObjectStore) Counts() (created, revoked int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.created, s.revoked
}
