package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/darthrootbeer/movie-heat/internal/domain"
	"github.com/darthrootbeer/movie-heat/internal/ports"
)

// MemoryStore is a run-scoped record cache. Each key owns its own lock, so
// readers of one movie never contend with writers of another.
type MemoryStore struct {
	slots sync.Map // string -> *slot
}

type slot struct {
	mu        sync.RWMutex
	rec       domain.ProviderRecord
	expiresAt time.Time
	set       bool
}

var _ ports.RecordStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty cache.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) slot(key domain.RecordKey) *slot {
	if s, ok := m.slots.Load(key.String()); ok {
		return s.(*slot)
	}
	s, _ := m.slots.LoadOrStore(key.String(), &slot{})
	return s.(*slot)
}

func (m *MemoryStore) Get(_ context.Context, key domain.RecordKey) (domain.ProviderRecord, time.Time, bool, error) {
	s := m.slot(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return domain.ProviderRecord{}, time.Time{}, false, nil
	}
	return s.rec, s.expiresAt, true, nil
}

func (m *MemoryStore) Set(_ context.Context, key domain.RecordKey, rec domain.ProviderRecord, expiresAt time.Time) error {
	s := m.slot(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = rec
	s.expiresAt = expiresAt
	s.set = true
	return nil
}

func (m *MemoryStore) HasFresh(_ context.Context, key domain.RecordKey, now time.Time) (bool, error) {
	s := m.slot(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.set && now.Before(s.expiresAt), nil
}

// Len reports how many keys hold a record, fresh or not.
func (m *MemoryStore) Len() int {
	n := 0
	m.slots.Range(func(_, v any) bool {
		s := v.(*slot)
		s.mu.RLock()
		if s.set {
			n++
		}
		s.mu.RUnlock()
		return true
	})
	return n
}
