package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kycore/internal/document/models"
	"kycore/pkg/platform/sentinel"
)

// PostgresStore reads document metadata from PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed document store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, doc *models.Summary) error {
	if doc == nil {
		return fmt.Errorf("document is required")
	}
	query := `
		INSERT INTO documents (id, user_email, doc_type, sha256, status, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.ExecContext(ctx, query,
		doc.ID,
		doc.Email,
		doc.DocType,
		doc.SHA256,
		doc.Status,
		doc.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *PostgresStore) LatestByEmail(ctx context.Context, email string) (*models.Summary, error) {
	query := `
		SELECT id, user_email, doc_type, sha256, status, uploaded_at
		FROM documents
		WHERE user_email = $1
		ORDER BY uploaded_at DESC
		LIMIT 1
	`
	var doc models.Summary
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&doc.ID,
		&doc.Email,
		&doc.DocType,
		&doc.SHA256,
		&doc.Status,
		&doc.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find latest document: %w", err)
	}
	return &doc, nil
}
