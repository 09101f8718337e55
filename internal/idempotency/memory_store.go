package idempotency

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	rec     Record
	expires time.Time
}

type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now, entries: map[string]memoryEntry{}}
}

func (s *MemoryStore) Reserve(_ context.Context, key string, ttl time.Duration) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if entry, ok := s.entries[key]; ok && now.Before(entry.expires) {
		return entry.rec, false, nil
	}
	s.entries[key] = memoryEntry{rec: Record{State: StatePending}, expires: now.Add(ttl)}
	s.sweep(now)
	return Record{State: StatePending}, true, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, rec Record, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.State = StateDone
	s.entries[key] = memoryEntry{rec: rec, expires: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// sweep drops expired entries; callers hold s.mu.
func (s *MemoryStore) sweep(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.expires) {
			delete(s.entries, key)
		}
	}
}
