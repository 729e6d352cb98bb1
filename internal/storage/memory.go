package storage

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryStore is a bounded in-process store. The least recently used key
// is evicted once size is reached.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

// NewMemoryStore creates a MemoryStore holding at most size keys.
func NewMemoryStore(size int) (*MemoryStore, error) {
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.cache.Add(key, append([]byte(nil), value...))
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.cache.Purge()
	return nil
}

// Len reports how many keys are held.
func (s *MemoryStore) Len() int {
	return s.cache.Len()
}
