package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Shauryainfotech-glitch/Shaurya-Infotech-sub000/internal/shared/models"
)

// MemoryStore is a process-local Store
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

// NewMemoryStoreWithClock creates an in-memory store with an injected clock
func NewMemoryStoreWithClock(now func() time.Time) *MemoryStore {
	return &MemoryStore{entries: make(map[string]*models.CacheEntry), now: now}
}

func (s *MemoryStore) Lookup(ctx context.Context, key string) (*models.CacheEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.ExpiresAt) {
		return nil, nil
	}
	e.HitCount++
	cp := *e
	return &cp, nil
}

// Save replaces any entry under the same key
func (s *MemoryStore) Save(ctx context.Context, entry models.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.HitCount = 0
	s.entries[entry.Key] = &entry
	return nil
}

func (s *MemoryStore) Purge(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for k, e := range s.entries {
		if !now.Before(e.ExpiresAt) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}

// Peek returns an entry without counting a hit, expired or not
func (s *MemoryStore) Peek(key string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return models.CacheEntry{}, false
	}
	return *e, true
}

// Len returns the number of stored entries
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
