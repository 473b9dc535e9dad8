// Package auditlog implements the institution-facing audit query engine:
// filtered, paginated views over consent records plus rollup statistics,
// with best-effort document enrichment per row.
package auditlog

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kycore/internal/audit"
	"kycore/internal/auditlog/models"
	"kycore/internal/auditlog/tracer"
	consentmodels "kycore/internal/consent/models"
	"kycore/internal/consent/store"
	docmodels "kycore/internal/document/models"
	"kycore/internal/platform/metrics"
	"kycore/internal/platform/middleware"
	dErrors "kycore/pkg/domain-errors"
	"kycore/pkg/platform/sentinel"
)

// DocumentLinker resolves a user's most recent document. A missing document
// is (nil, nil); failures must not abort the caller's query.
type DocumentLinker interface {
	LatestDocumentFor(ctx context.Context, email string) (*docmodels.Summary, error)
}

const defaultEnrichmentConcurrency = 4

// Service answers institution-scoped audit queries.
type Service struct {
	store             store.Store
	linker            DocumentLinker
	tracer            tracer.Tracer
	auditor           *audit.Publisher
	metrics           *metrics.Metrics
	logger            *slog.Logger
	ledgerExplorerURL string
	defaultPageSize   int
	maxPageSize       int
	enrichConcurrency int
	now               func() time.Time
}

// Option configures the Service.
type Option func(*Service)

// WithMetrics sets the metrics instance for the service.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracer. Defaults to a no-op tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditor emits access-denied audit events for rejected detail lookups.
func WithAuditor(a *audit.Publisher) Option {
	return func(s *Service) {
		s.auditor = a
	}
}

// WithLedgerExplorerURL sets the base URL used to build ledger viewer links.
func WithLedgerExplorerURL(url string) Option {
	return func(s *Service) {
		s.ledgerExplorerURL = url
	}
}

// WithPageSizes overrides the default and maximum page sizes.
func WithPageSizes(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.defaultPageSize = def
		}
		if max > 0 {
			s.maxPageSize = max
		}
	}
}

// WithEnrichmentConcurrency bounds parallel document lookups per page.
func WithEnrichmentConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.enrichConcurrency = n
		}
	}
}

func NewService(st store.Store, linker DocumentLinker, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:             st,
		linker:            linker,
		tracer:            tracer.NewNoop(),
		logger:            logger,
		defaultPageSize:   10,
		maxPageSize:       100,
		enrichConcurrency: defaultEnrichmentConcurrency,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Query returns one page of the institution's audit log together with the
// total filtered count and institution-wide rollup statistics. The count,
// page, and stats reads are independent; slight skew under concurrent
// writes is tolerated.
func (s *Service) Query(ctx context.Context, institution string, params models.QueryParams) (_ *models.Page, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, tracer.SpanQuery,
		tracer.String(tracer.AttrInstitution, institution),
	)
	defer func() { span.End(err) }()

	if consentmodels.NormalizeInstitution(institution) == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution scope is required")
	}
	params.Normalize(s.defaultPageSize, s.maxPageSize)
	span.SetAttributes(
		tracer.Int64(tracer.AttrPage, int64(params.Page)),
		tracer.Int64(tracer.AttrPageSize, int64(params.PageSize)),
	)

	filter := consentmodels.Filter{
		Institution: institution,
		Search:      params.Q,
		Action:      params.Action,
		From:        params.From,
		To:          params.To,
	}

	total, err := s.store.CountMatching(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count audit records")
	}

	records, err := s.store.ListMatching(ctx, filter, params.PageSize, params.Offset())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch audit page")
	}

	stats, err := s.computeStats(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := s.buildEntries(ctx, records)
	span.SetAttributes(
		tracer.Int64(tracer.AttrTotal, int64(total)),
		tracer.Int64(tracer.AttrRows, int64(len(items))),
		tracer.Duration(tracer.AttrElapsed, s.now().Sub(start)),
	)

	s.observeQuery(start)
	return &models.Page{
		Items:    items,
		Total:    total,
		Page:     params.Page,
		PageSize: params.PageSize,
		Stats:    *stats,
	}, nil
}

// Detail returns one audit record in full, with its resolved document and a
// ledger viewer link. Records outside the caller's institution scope are
// denied, not merely hidden.
func (s *Service) Detail(ctx context.Context, institution string, logID uuid.UUID) (_ *models.Detail, err error) {
	ctx, span := s.tracer.Start(ctx, tracer.SpanDetail,
		tracer.String(tracer.AttrInstitution, institution),
	)
	defer func() { span.End(err) }()

	if consentmodels.NormalizeInstitution(institution) == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution scope is required")
	}

	record, err := s.store.FindByID(ctx, logID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "audit log entry not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to fetch audit record")
	}

	scope := consentmodels.Filter{Institution: institution}
	if !scope.MatchesScope(record) {
		s.emitAccessDenied(ctx, institution, record)
		return nil, dErrors.New(dErrors.CodeForbidden, "audit log entry belongs to another institution")
	}

	detail := &models.Detail{
		Entry:     s.entryFor(record),
		UserID:    record.UserID,
		Status:    string(record.Status),
		LedgerRef: record.LedgerRef,
	}
	if s.ledgerExplorerURL != "" && record.LedgerRef != "" {
		detail.LedgerLink = s.ledgerExplorerURL + "/tx/" + record.LedgerRef
	}

	if doc, _ := s.resolveDocument(ctx, record.UserEmail); doc != nil {
		detail.DocType = &doc.DocType
		detail.DocSHA256 = &doc.SHA256
		detail.DocStatus = &doc.Status
	}
	span.SetAttributes(tracer.Bool(tracer.AttrDocument, detail.DocType != nil))
	return detail, nil
}

// emitAccessDenied records scope violations on the audit trail. Best-effort,
// like every audit emission.
func (s *Service) emitAccessDenied(ctx context.Context, institution string, record *consentmodels.Record) {
	if s.auditor == nil {
		return
	}
	_ = s.auditor.Emit(ctx, audit.Event{
		UserID:      record.UserID,
		Subject:     record.UserEmail,
		Action:      audit.ActionAccessDenied,
		Institution: institution,
		Decision:    audit.DecisionDenied,
		RequestID:   middleware.GetRequestID(ctx),
	})
}

// Consents lists the institution's currently granted consents.
func (s *Service) Consents(ctx context.Context, institution string) ([]*consentmodels.Record, error) {
	if consentmodels.NormalizeInstitution(institution) == "" {
		return nil, dErrors.New(dErrors.CodeForbidden, "institution scope is required")
	}
	records, err := s.store.ListGrantedByInstitution(ctx, institution)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list granted consents")
	}
	return records, nil
}

// computeStats reduces the institution's full scoped set. Counts are over
// all scoped rows; totalUsers and activeCount are per distinct email, with
// activeCount keeping only users whose most recent record is granted.
func (s *Service) computeStats(ctx context.Context, filter consentmodels.Filter) (_ *models.Stats, err error) {
	_, span := s.tracer.Start(ctx, tracer.SpanStats)
	defer func() { span.End(err) }()

	scoped, err := s.store.ListByInstitution(ctx, filter.ScopeOnly())
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute audit stats")
	}

	stats := &models.Stats{}
	latest := make(map[string]*consentmodels.Record, len(scoped))
	for _, record := range scoped {
		if record.Status == consentmodels.StatusGranted {
			stats.GrantedCount++
		} else {
			stats.RevokedCount++
		}
		prev, seen := latest[record.UserEmail]
		if !seen || moreRecent(record, prev) {
			latest[record.UserEmail] = record
		}
	}

	stats.TotalUsers = len(latest)
	for _, record := range latest {
		if record.Status == consentmodels.StatusGranted {
			stats.ActiveCount++
		}
	}
	return stats, nil
}

// moreRecent orders records by LastUpdated with the ID string as a
// deterministic tie-break.
func moreRecent(a, b *consentmodels.Record) bool {
	if a.LastUpdated.Equal(b.LastUpdated) {
		return a.ID.String() > b.ID.String()
	}
	return a.LastUpdated.After(b.LastUpdated)
}

// buildEntries converts page rows to DTOs and enriches each with the user's
// latest document type. Lookups run concurrently; failures are logged and
// leave the field nil.
func (s *Service) buildEntries(ctx context.Context, records []*consentmodels.Record) []models.Entry {
	entries := make([]models.Entry, len(records))

	_, span := s.tracer.Start(ctx, tracer.SpanEnrich,
		tracer.Int64(tracer.AttrRows, int64(len(records))),
	)
	defer span.End(nil)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.enrichConcurrency)
	for i, record := range records {
		entries[i] = s.entryFor(record)
		g.Go(func() error {
			doc, failed := s.resolveDocument(gctx, record.UserEmail)
			if failed {
				span.AddEvent(tracer.EventEnrichmentFailed,
					tracer.String("subject", record.UserEmail),
				)
				return nil
			}
			if doc != nil {
				entries[i].DocType = &doc.DocType
			}
			return nil
		})
	}
	// Workers never return errors; Wait only synchronizes completion.
	_ = g.Wait()
	return entries
}

func (s *Service) entryFor(record *consentmodels.Record) models.Entry {
	return models.Entry{
		LogID:       record.ID.String(),
		UserEmail:   record.UserEmail,
		UserName:    record.UserName,
		Institution: record.InstitutionName,
		Action:      string(record.Action()),
		Timestamp:   record.LastUpdated,
	}
}

// resolveDocument is the best-effort enrichment lookup. It never propagates
// failure into the query path; the second return distinguishes a lookup
// failure from a user without documents.
func (s *Service) resolveDocument(ctx context.Context, email string) (*docmodels.Summary, bool) {
	if s.linker == nil {
		return nil, false
	}
	doc, err := s.linker.LatestDocumentFor(ctx, email)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("document enrichment failed",
				"email", email,
				"error", err,
			)
		}
		if s.metrics != nil {
			s.metrics.IncrementEnrichmentFailures()
		}
		return nil, true
	}
	return doc, false
}

func (s *Service) observeQuery(start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncrementAuditQueries()
	s.metrics.ObserveAuditQueryLatency(s.now().Sub(start).Seconds())
}
