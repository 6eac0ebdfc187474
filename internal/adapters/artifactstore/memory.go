package artifactstore

import (
	"context"
	"sort"
	"sync"
)

// Object is an artifact held by MemoryStore.
type Object struct {
	Content     []byte
	ContentType string
}

// MemoryStore keeps published artifacts in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

// Put implements ports.ArtifactStore.
func (s *MemoryStore) Put(_ context.Context, buildID, name string, content []byte, contentType string) error {
	key, err := objectKey("", buildID, name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = Object{Content: append([]byte(nil), content...), ContentType: contentType}
	return nil
}

// Get returns the artifact stored under buildID/name.
func (s *MemoryStore) Get(buildID, name string) (Object, bool) {
	key, err := objectKey("", buildID, name)
	if err != nil {
		return Object{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[key]
	return obj, ok
}

// Keys returns every stored key, sorted.
func (s *MemoryStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
