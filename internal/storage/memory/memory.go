package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MikhailRaia/shortlinks/internal/model"
	"github.com/MikhailRaia/shortlinks/internal/storage"
)

// Storage implements in-memory URLStorage for testing and development.
type Storage struct {
	urlMap map[string]model.URLMapping
	mutex  sync.RWMutex
}

// NewStorage creates a new in-memory storage instance.
func NewStorage() *Storage {
	return &Storage{
		urlMap: make(map[string]model.URLMapping),
	}
}

// Save stores a new mapping under its short code.
func (s *Storage) Save(_ context.Context, mapping model.URLMapping) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.urlMap[mapping.ID]; exists {
		return storage.ErrURLExists
	}

	s.urlMap[mapping.ID] = mapping
	return nil
}

// Get retrieves the mapping for a given short code.
func (s *Storage) Get(_ context.Context, id string) (model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	mapping, found := s.urlMap[id]
	if !found {
		return model.URLMapping{}, storage.ErrNotFound
	}
	return mapping, nil
}

// List returns every stored mapping in no particular order.
func (s *Storage) List(_ context.Context) ([]model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]model.URLMapping, 0, len(s.urlMap))
	for _, mapping := range s.urlMap {
		result = append(result, mapping)
	}
	return result, nil
}

// ListByOwner returns the mappings created by ownerID, newest first.
func (s *Storage) ListByOwner(_ context.Context, ownerID string) ([]model.URLMapping, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var result []model.URLMapping
	for _, mapping := range s.urlMap {
		if mapping.OwnerID == ownerID {
			result = append(result, mapping)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedDate.After(result[j].CreatedDate)
	})
	return result, nil
}

// IncrementClicks adds click counts to existing mappings.
func (s *Storage) IncrementClicks(_ context.Context, counts map[string]int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for id, n := range counts {
		mapping, found := s.urlMap[id]
		if !found {
			continue
		}
		mapping.ClickCount += n
		s.urlMap[id] = mapping
	}
	return nil
}

// Delete removes a mapping.
func (s *Storage) Delete(_ context.Context, id string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, found := s.urlMap[id]; !found {
		return storage.ErrNotFound
	}
	delete(s.urlMap, id)
	return nil
}

// DeleteExpired removes every mapping that has expired at now.
func (s *Storage) DeleteExpired(_ context.Context, now time.Time) (int, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed := 0
	for id, mapping := range s.urlMap {
		if mapping.Expired(now) {
			delete(s.urlMap, id)
			removed++
		}
	}
	return removed, nil
}

// Ping always succeeds for in-memory storage.
func (s *Storage) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Storage) Close() error {
	return nil
}
