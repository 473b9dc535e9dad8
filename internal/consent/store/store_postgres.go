package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"kycore/internal/consent/models"
	"kycore/pkg/platform/sentinel"
)

// PostgresStore persists consent records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed consent store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `id, user_id, user_email, user_name, institution_key, institution_name, status, ledger_ref, last_updated`

func (s *PostgresStore) Create(ctx context.Context, record *models.Record) error {
	if record == nil {
		return fmt.Errorf("consent record is required")
	}
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (user_id, institution_key) DO NOTHING
		RETURNING id
	`
	var storedID uuid.UUID
	err := s.db.QueryRowContext(ctx, query,
		record.ID,
		record.UserID,
		record.UserEmail,
		record.UserName,
		record.InstitutionKey,
		record.InstitutionName,
		string(record.Status),
		record.LedgerRef,
		record.LastUpdated,
	).Scan(&storedID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByScope(ctx context.Context, scope Scope) (*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE user_id = $1 AND institution_key = $2
	`
	record, err := scanConsent(s.db.QueryRowContext(ctx, query, scope.UserID, scope.InstitutionKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent: %w", err)
	}
	return record, nil
}

// Execute atomically validates and mutates a consent record under row lock.
func (s *PostgresStore) Execute(ctx context.Context, scope Scope, validate func(*models.Record) error, mutate func(*models.Record)) (*models.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin consent execute tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE user_id = $1 AND institution_key = $2
		FOR UPDATE
	`
	record, err := scanConsent(tx.QueryRowContext(ctx, query, scope.UserID, scope.InstitutionKey))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent for execute: %w", err)
	}

	if err := validate(record); err != nil {
		return nil, err
	}
	mutate(record)

	update := `
		UPDATE consents
		SET institution_name = $2, status = $3, ledger_ref = $4, last_updated = $5
		WHERE id = $1
	`
	res, err := tx.ExecContext(ctx, update,
		record.ID,
		record.InstitutionName,
		string(record.Status),
		record.LedgerRef,
		record.LastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("update consent: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update consent rows: %w", err)
	}
	if rows == 0 {
		return nil, sentinel.ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit consent execute: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id uuid.UUID) (*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE id = $1
	`
	record, err := scanConsent(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find consent by id: %w", err)
	}
	return record, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string) ([]*models.Record, error) {
	query := `
		SELECT ` + consentColumns + `
		FROM consents
		WHERE user_id = $1
		ORDER BY last_updated DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list consents by user: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresStore) CountMatching(ctx context.Context, filter models.Filter) (int, error) {
	where, args := buildFilterClause(filter)
	query := `SELECT COUNT(*) FROM consents ` + where

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count consents: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) ListMatching(ctx context.Context, filter models.Filter, limit, offset int) ([]*models.Record, error) {
	where, args := buildFilterClause(filter)
	query := `SELECT ` + consentColumns + ` FROM consents ` + where +
		` ORDER BY last_updated DESC, id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) +
		` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list matching consents: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresStore) ListByInstitution(ctx context.Context, filter models.Filter) ([]*models.Record, error) {
	where, args := buildFilterClause(filter)
	query := `SELECT ` + consentColumns + ` FROM consents ` + where +
		` ORDER BY last_updated DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents by institution: %w", err)
	}
	defer rows.Close()
	return scanConsents(rows)
}

func (s *PostgresStore) ListGrantedByInstitution(ctx context.Context, institution string) ([]*models.Record, error) {
	return s.ListByInstitution(ctx, models.Filter{Institution: institution, Action: models.ActionGranted})
}

// buildFilterClause renders a Filter into a WHERE clause with positional args.
// Institution scope is mandatory; the remaining conditions are appended as
// supplied. All substring patterns are LIKE-escaped against injection.
func buildFilterClause(filter models.Filter) (string, []any) {
	scope := "%" + models.EscapeLike(models.NormalizeInstitution(filter.Institution)) + "%"
	clause := `WHERE (institution_key ILIKE $1 ESCAPE '\' OR institution_name ILIKE $1 ESCAPE '\')`
	args := []any{scope}

	if filter.Search != "" {
		pattern := "%" + models.EscapeLike(filter.Search) + "%"
		args = append(args, pattern)
		n := strconv.Itoa(len(args))
		clause += ` AND (user_email ILIKE $` + n + ` ESCAPE '\' OR user_name ILIKE $` + n + ` ESCAPE '\')`
	}
	switch filter.Action {
	case models.ActionGranted:
		args = append(args, string(models.StatusGranted))
		clause += ` AND status = $` + strconv.Itoa(len(args))
	case models.ActionRevoked:
		args = append(args, string(models.StatusRevoked))
		clause += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		clause += ` AND last_updated >= $` + strconv.Itoa(len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		clause += ` AND last_updated <= $` + strconv.Itoa(len(args))
	}
	return clause, args
}

type consentRow interface {
	Scan(dest ...any) error
}

func scanConsent(row consentRow) (*models.Record, error) {
	var record models.Record
	var status string
	if err := row.Scan(
		&record.ID,
		&record.UserID,
		&record.UserEmail,
		&record.UserName,
		&record.InstitutionKey,
		&record.InstitutionName,
		&status,
		&record.LedgerRef,
		&record.LastUpdated,
	); err != nil {
		return nil, err
	}
	record.Status = models.Status(status)
	return &record, nil
}

func scanConsents(rows *sql.Rows) ([]*models.Record, error) {
	var records []*models.Record
	for rows.Next() {
		record, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consents: %w", err)
	}
	return records, nil
}
