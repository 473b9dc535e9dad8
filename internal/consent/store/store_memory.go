package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"kycore/internal/consent/models"
	"kycore/pkg/platform/sentinel"
)

// InMemoryStore keeps consent records in a map keyed by (user, institution).
// Used by unit tests and local development; the coarse lock stands in for the
// database's per-key atomicity.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[Scope]*models.Record
}

// NewInMemory creates an empty in-memory consent store.
func NewInMemory() *InMemoryStore {
	return &InMemoryStore{records: make(map[Scope]*models.Record)}
}

func (s *InMemoryStore) Create(_ context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scope := Scope{UserID: record.UserID, InstitutionKey: record.InstitutionKey}
	if _, exists := s.records[scope]; exists {
		return sentinel.ErrConflict
	}
	clone := *record
	s.records[scope] = &clone
	return nil
}

func (s *InMemoryStore) FindByScope(_ context.Context, scope Scope) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[scope]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) Execute(_ context.Context, scope Scope, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[scope]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)
	clone := *record
	return &clone, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id uuid.UUID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.records {
		if record.ID == id {
			clone := *record
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListByUser(_ context.Context, userID string) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Record
	for _, record := range s.records {
		if record.UserID == userID {
			clone := *record
			result = append(result, &clone)
		}
	}
	sortByRecency(result)
	return result, nil
}

func (s *InMemoryStore) CountMatching(_ context.Context, filter models.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, record := range s.records {
		if filter.Matches(record) {
			count++
		}
	}
	return count, nil
}

func (s *InMemoryStore) ListMatching(_ context.Context, filter models.Filter, limit, offset int) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Record
	for _, record := range s.records {
		if filter.Matches(record) {
			clone := *record
			matched = append(matched, &clone)
		}
	}
	sortByRecency(matched)

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func (s *InMemoryStore) ListByInstitution(_ context.Context, filter models.Filter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Record
	for _, record := range s.records {
		if filter.Matches(record) {
			clone := *record
			result = append(result, &clone)
		}
	}
	sortByRecency(result)
	return result, nil
}

func (s *InMemoryStore) ListGrantedByInstitution(ctx context.Context, institution string) ([]*models.Record, error) {
	return s.ListByInstitution(ctx, models.Filter{Institution: institution, Action: models.ActionGranted})
}

// sortByRecency orders records by LastUpdated descending, breaking ties by ID
// so pagination is deterministic.
func sortByRecency(records []*models.Record) {
	sort.Slice(records, func(i, j int) bool {
		if !records[i].LastUpdated.Equal(records[j].LastUpdated) {
			return records[i].LastUpdated.After(records[j].LastUpdated)
		}
		return records[i].ID.String() > records[j].ID.String()
	})
}
