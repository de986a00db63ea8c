package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	data     []byte
	storedAt time.Time
	ttl      time.Duration
}

func (e memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.storedAt) > e.ttl
}

// MemoryStore implements Store with an in-process LRU. It is the fallback
// when Redis is not configured; per-entry TTLs are checked on read.
type MemoryStore struct {
	mu    sync.Mutex
	store *lru.Cache[string, memoryEntry]
}

// NewMemoryStore creates an in-memory Store bounded to maxEntries
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	store, err := lru.New[string, memoryEntry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{store: store}, nil
}

func (s *MemoryStore) Get(_ context.Context, namespace, key string, out interface{}) (bool, error) {
	k := storageKey(namespace, key)

	s.mu.Lock()
	entry, ok := s.store.Get(k)
	if ok && entry.expired(time.Now()) {
		s.store.Remove(k)
		ok = false
	}
	s.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := unmarshalValue(entry.data, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemoryStore) Set(_ context.Context, namespace, key string, value interface{}, ttl time.Duration) error {
	data, err := marshalValue(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.store.Add(storageKey(namespace, key), memoryEntry{data: data, storedAt: time.Now(), ttl: ttl})
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, namespace, key string) error {
	s.mu.Lock()
	s.store.Remove(storageKey(namespace, key))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.store.Purge()
	s.mu.Unlock()
	return nil
}
