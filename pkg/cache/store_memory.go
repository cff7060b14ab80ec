package cache

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore keeps entries in process memory. It does not survive restarts
// and is meant for tests and ephemeral deployments.
type MemoryStore struct {
	// mu serializes mutations so DeleteIf can compare and delete atomically.
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryStore creates an empty in-memory store. Items never expire at
// this layer; entry lifetime is governed by the record metadata.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Set(key, cloneBytes(value), gocache.NoExpiration)
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	body, ok := item.([]byte)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(body), true, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Delete(key)
	return nil
}

// DeleteIf implements Store.
func (s *MemoryStore) DeleteIf(_ context.Context, key string, old []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.cache.Get(key)
	if !ok {
		return false, nil
	}
	if body, ok := item.([]byte); !ok || !bytes.Equal(body, old) {
		return false, nil
	}
	s.cache.Delete(key)
	return true, nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range s.cache.Items() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
