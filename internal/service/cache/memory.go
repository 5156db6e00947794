package cache

import (
	"context"
	"sync"
	"time"

	"github.com/zhouzirui/sympcheck/backend/internal/model/diagnosis"
)

// Store is the condition detail cache contract.
type Store interface {
	Get(ctx context.Context, id string) (diagnosis.ConditionDetailResponse, bool, error)
	Set(ctx context.Context, detail diagnosis.ConditionDetailResponse, ttl time.Duration) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)

type memoryEntry struct {
	detail    diagnosis.ConditionDetailResponse
	expiresAt time.Time
}

// MemoryStore keeps condition details in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore returns an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the cached detail for id. Expired entries are dropped on read.
func (s *MemoryStore) Get(_ context.Context, id string) (diagnosis.ConditionDetailResponse, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return diagnosis.ConditionDetailResponse{}, false, nil
	}

	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if current, still := s.entries[id]; still && current.expiresAt.Equal(entry.expiresAt) {
			delete(s.entries, id)
		}
		s.mu.Unlock()
		return diagnosis.ConditionDetailResponse{}, false, nil
	}

	return cloneDetail(entry.detail), true, nil
}

// Set stores detail under its id. A non-positive ttl never expires.
func (s *MemoryStore) Set(_ context.Context, detail diagnosis.ConditionDetailResponse, ttl time.Duration) error {
	if detail.ID == "" {
		return ErrMissingID
	}

	entry := memoryEntry{detail: cloneDetail(detail)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[detail.ID] = entry
	s.mu.Unlock()
	return nil
}

// Len reports how many entries are held, expired ones included.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func cloneDetail(d diagnosis.ConditionDetailResponse) diagnosis.ConditionDetailResponse {
	d.Symptoms = append([]string(nil), d.Symptoms...)
	d.Causes = append([]string(nil), d.Causes...)
	d.Treatments = append([]string(nil), d.Treatments...)
	return d
}
