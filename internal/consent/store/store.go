package store

import (
	"context"

	"github.com/google/uuid"

	"kycore/internal/consent/models"
)

// Scope identifies the single record a user holds for an institution.
type Scope struct {
	UserID         string
	InstitutionKey string
}

// Store persists consent records and serves the verification-log reads.
//
// Error contract:
// - Create returns sentinel.ErrConflict when the (user, institution) pair exists
// - FindByScope, FindByID and Execute return sentinel.ErrNotFound when absent
// - Other failures are wrapped infrastructure errors
type Store interface {
	// Create inserts a new record. The uniqueness of (UserID, InstitutionKey)
	// is enforced atomically: concurrent creates for the same new pair resolve
	// to one row and one ErrConflict.
	Create(ctx context.Context, record *models.Record) error

	// FindByScope returns the record for the pair, regardless of status.
	FindByScope(ctx context.Context, scope Scope) (*models.Record, error)

	// Execute atomically validates and mutates the record under lock.
	// The mutation is discarded when validate returns an error.
	Execute(ctx context.Context, scope Scope, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error)

	// FindByID returns a single record by its identifier.
	FindByID(ctx context.Context, id uuid.UUID) (*models.Record, error)

	// ListByUser returns all of a user's records, most recently updated first.
	ListByUser(ctx context.Context, userID string) ([]*models.Record, error)

	// CountMatching returns the number of records satisfying the full filter.
	CountMatching(ctx context.Context, filter models.Filter) (int, error)

	// ListMatching returns one page of matching records sorted by LastUpdated
	// descending (ties broken by ID for a stable order).
	ListMatching(ctx context.Context, filter models.Filter, limit, offset int) ([]*models.Record, error)

	// ListByInstitution returns every record matching the filter, sorted by
	// recency. Rollup statistics pass a scope-only filter here so row-level
	// conditions never narrow the stats set.
	ListByInstitution(ctx context.Context, filter models.Filter) ([]*models.Record, error)

	// ListGrantedByInstitution returns only currently granted records in scope.
	ListGrantedByInstitution(ctx context.Context, institution string) ([]*models.Record, error)
}
