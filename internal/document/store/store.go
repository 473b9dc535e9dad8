// Package store persists document metadata rows.
package store

import (
	"context"

	"kycore/internal/document/models"
)

// Store reads document metadata.
// Error Contract:
// - LatestByEmail returns sentinel.ErrNotFound when the user has no documents
// - Save returns nil on success or a wrapped error on failure
type Store interface {
	Save(ctx context.Context, doc *models.Summary) error
	LatestByEmail(ctx context.Context, email string) (*models.Summary, error)
}
