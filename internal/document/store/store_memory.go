package store

import (
	"context"
	"sync"

	"kycore/internal/document/models"
	"kycore/pkg/platform/sentinel"
)

// InMemoryStore keeps document rows in memory for tests and local runs.
type InMemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]*models.Summary
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{docs: make(map[string][]*models.Summary)}
}

func (s *InMemoryStore) Save(_ context.Context, doc *models.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *doc
	s.docs[doc.Email] = append(s.docs[doc.Email], &clone)
	return nil
}

func (s *InMemoryStore) LatestByEmail(_ context.Context, email string) (*models.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := s.docs[email]
	if len(docs) == 0 {
		return nil, sentinel.ErrNotFound
	}
	latest := docs[0]
	for _, doc := range docs[1:] {
		if doc.UploadedAt.After(latest.UploadedAt) {
			latest = doc
		}
	}
	clone := *latest
	return &clone, nil
}
