package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kycore/internal/audit"
	"kycore/internal/consent/models"
	"kycore/internal/consent/store"
	"kycore/internal/ledger"
	"kycore/internal/platform/metrics"
	"kycore/internal/platform/middleware"
	dErrors "kycore/pkg/domain-errors"
	"kycore/pkg/platform/sentinel"
)

type Option func(*Service)

// Service enforces the consent lifecycle: one record per user and
// institution, toggled between granted and revoked. A ledger receipt is
// minted on every grant transition and never on revocation.
type Service struct {
	store   store.Store
	ledger  ledger.Generator
	auditor *audit.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(st store.Store, gen ledger.Generator, auditor *audit.Publisher, logger *slog.Logger, opts ...Option) *Service {
	svc := &Service{
		store:   st,
		ledger:  gen,
		auditor: auditor,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// WithMetrics sets the metrics instance for the service
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Grant records the user's consent for the named institution. A repeat
// grant while consent is already active fails with a duplicate-grant
// error; granting after revocation re-activates the record with a fresh
// ledger receipt.
func (s *Service) Grant(ctx context.Context, user models.User, institution string) (*models.Record, error) {
	start := s.now()

	key := models.NormalizeInstitution(institution)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "institution is required")
	}
	if user.ID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}

	scope := store.Scope{UserID: user.ID, InstitutionKey: key}
	existing, err := s.store.FindByScope(ctx, scope)
	if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read consent")
	}

	var record *models.Record
	switch {
	case err != nil:
		record, err = s.createGrant(ctx, user, institution, scope)
	case existing.Status == models.StatusGranted:
		s.incrementDuplicateGrants()
		return nil, dErrors.New(dErrors.CodeDuplicateGrant, "consent already granted for this institution")
	default:
		record, err = s.regrant(ctx, user, institution, scope)
	}
	if err != nil {
		return nil, err
	}

	s.emitAudit(ctx, record, audit.ActionConsentGranted, audit.DecisionGranted)
	s.incrementConsentsGranted()
	s.observeOpLatency("grant", start)
	return record, nil
}

// createGrant inserts a first-time consent record. A unique-constraint
// conflict means a concurrent grant won the race, which surfaces as a
// duplicate grant to the caller.
func (s *Service) createGrant(ctx context.Context, user models.User, institution string, scope store.Scope) (*models.Record, error) {
	ref, err := s.mintLedgerRef(ctx)
	if err != nil {
		return nil, err
	}

	record := &models.Record{
		ID:              uuid.New(),
		UserID:          user.ID,
		UserEmail:       user.Email,
		UserName:        user.Name,
		InstitutionKey:  scope.InstitutionKey,
		InstitutionName: models.DisplayInstitution(institution),
		Status:          models.StatusGranted,
		LedgerRef:       ref,
		LastUpdated:     s.now(),
	}
	if err := s.store.Create(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			s.incrementDuplicateGrants()
			return nil, dErrors.New(dErrors.CodeDuplicateGrant, "consent already granted for this institution")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save consent")
	}
	return record, nil
}

// regrant flips a revoked record back to granted under row lock.
func (s *Service) regrant(ctx context.Context, user models.User, institution string, scope store.Scope) (*models.Record, error) {
	ref, err := s.mintLedgerRef(ctx)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Execute(ctx, scope,
		func(r *models.Record) error {
			if r.Status == models.StatusGranted {
				s.incrementDuplicateGrants()
				return dErrors.New(dErrors.CodeDuplicateGrant, "consent already granted for this institution")
			}
			return nil
		},
		func(r *models.Record) {
			r.Status = models.StatusGranted
			r.InstitutionName = models.DisplayInstitution(institution)
			r.UserEmail = user.Email
			r.UserName = user.Name
			r.LedgerRef = ref
			r.LastUpdated = s.now()
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			// The record vanished between read and lock; retry as a fresh grant.
			return s.createGrant(ctx, user, institution, scope)
		}
		if dErrors.HasCode(err, dErrors.CodeDuplicateGrant) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to re-grant consent")
	}
	return record, nil
}

// Revoke withdraws the user's consent for the named institution. The
// ledger receipt from the last grant is preserved. Revoking a consent
// that was never granted is an error; revoking an already revoked
// consent restamps the timestamp and succeeds.
func (s *Service) Revoke(ctx context.Context, user models.User, institution string) (*models.Record, error) {
	start := s.now()

	key := models.NormalizeInstitution(institution)
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "institution is required")
	}
	if user.ID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}

	scope := store.Scope{UserID: user.ID, InstitutionKey: key}
	record, err := s.store.Execute(ctx, scope,
		func(*models.Record) error { return nil },
		func(r *models.Record) {
			r.Status = models.StatusRevoked
			r.InstitutionName = models.DisplayInstitution(institution)
			r.LastUpdated = s.now()
		},
	)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no consent found for this institution")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke consent")
	}

	s.emitAudit(ctx, record, audit.ActionConsentRevoked, audit.DecisionRevoked)
	s.incrementConsentsRevoked()
	s.observeOpLatency("revoke", start)
	return record, nil
}

// ListByUser returns all of the user's consent records, most recent first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*models.Record, error) {
	if userID == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "missing user context")
	}
	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list consents")
	}
	return records, nil
}

// ListGrantedForInstitution returns currently granted consents within the
// calling institution's scope.
func (s *Service) ListGrantedForInstitution(ctx context.Context, institution string) ([]*models.Record, error) {
	if models.NormalizeInstitution(institution) == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "institution is required")
	}
	records, err := s.store.ListGrantedByInstitution(ctx, institution)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list granted consents")
	}
	return records, nil
}

func (s *Service) mintLedgerRef(ctx context.Context) (string, error) {
	ref, err := s.ledger.Next(ctx)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to mint ledger receipt")
	}
	s.incrementLedgerRefsMinted()
	return ref, nil
}

func (s *Service) emitAudit(ctx context.Context, record *models.Record, action, decision string) {
	if s.auditor == nil {
		return
	}
	meta := middleware.GetMetadata(ctx)
	_ = s.auditor.Emit(ctx, audit.Event{
		Timestamp:   record.LastUpdated,
		UserID:      record.UserID,
		Subject:     record.UserEmail,
		UserName:    record.UserName,
		Action:      action,
		Institution: record.InstitutionName,
		Decision:    decision,
		LedgerRef:   record.LedgerRef,
		RequestID:   middleware.GetRequestID(ctx),
		Device:      meta.Device,
		IP:          meta.IP,
	})
}

func (s *Service) incrementConsentsGranted() {
	if s.metrics != nil {
		s.metrics.IncrementConsentsGranted()
	}
}

func (s *Service) incrementConsentsRevoked() {
	if s.metrics != nil {
		s.metrics.IncrementConsentsRevoked()
	}
}

func (s *Service) incrementDuplicateGrants() {
	if s.metrics != nil {
		s.metrics.IncrementDuplicateGrants()
	}
}

func (s *Service) incrementLedgerRefsMinted() {
	if s.metrics != nil {
		s.metrics.IncrementLedgerRefsMinted()
	}
}

func (s *Service) observeOpLatency(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveConsentOpLatency(op, s.now().Sub(start).Seconds())
	}
}
