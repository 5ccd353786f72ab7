package store

import (
	"context"
	"slices"
	"sync"

	"github.com/berfenger/aurum2mqtt/internal/core/domain"
)

type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]domain.ConfigEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]domain.ConfigEntry{}}
}

func (s *MemoryStore) List(_ context.Context) ([]domain.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.ConfigEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, compareEntries)
	return entries, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return nil, ErrEntryNotFound
	}
	return &e, nil
}

func (s *MemoryStore) Save(_ context.Context, entry domain.ConfigEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Id] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// entries are listed in creation order
func compareEntries(a, b domain.ConfigEntry) int {
	if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
		return c
	}
	if a.Id < b.Id {
		return -1
	} else if a.Id > b.Id {
		return 1
	}
	return 0
}
