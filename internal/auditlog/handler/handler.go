package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"kycore/internal/auditlog/models"
	consentmodels "kycore/internal/consent/models"
	"kycore/internal/platform/middleware"
	dErrors "kycore/pkg/domain-errors"
	"kycore/pkg/platform/httputil"
)

// Service defines the institution-facing audit operations.
type Service interface {
	Query(ctx context.Context, institution string, params models.QueryParams) (*models.Page, error)
	Detail(ctx context.Context, institution string, logID uuid.UUID) (*models.Detail, error)
	Consents(ctx context.Context, institution string) ([]*consentmodels.Record, error)
}

// Handler serves the institution audit endpoints. Routes are expected to be
// mounted behind authentication and institution-role middleware.
type Handler struct {
	logger  *slog.Logger
	service Service
}

// New creates a new audit log Handler.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		service: service,
	}
}

// Register registers the audit routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/institution/consents", h.handleConsents)
	r.Get("/institution/audit-logs", h.handleQuery)
	r.Get("/institution/audit-logs/{logID}", h.handleDetail)
}

func (h *Handler) handleConsents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	institution, ok := callerInstitution(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "institution account required"))
		return
	}

	records, err := h.service.Consents(ctx, institution)
	if err != nil {
		h.logError(ctx, "failed to list granted consents", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, formatGrantedConsents(records))
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	institution, ok := callerInstitution(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "institution account required"))
		return
	}

	params, err := parseQueryParams(r.URL.Query())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	page, err := h.service.Query(ctx, institution, params)
	if err != nil {
		h.logError(ctx, "audit query failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, page)
}

func (h *Handler) handleDetail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	institution, ok := callerInstitution(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "institution account required"))
		return
	}

	logID, err := uuid.Parse(chi.URLParam(r, "logID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "audit log entry not found"))
		return
	}

	detail, err := h.service.Detail(ctx, institution, logID)
	if err != nil {
		h.logError(ctx, "audit detail lookup failed", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, detail)
}

func (h *Handler) logError(ctx context.Context, msg string, err error) {
	level := slog.LevelWarn
	if dErrors.HasCode(err, dErrors.CodeInternal) {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err,
	)
}

func callerInstitution(ctx context.Context) (string, bool) {
	ident, ok := middleware.GetIdentity(ctx)
	if !ok || ident.Role != middleware.RoleInstitution || ident.Institution == "" {
		return "", false
	}
	return ident.Institution, true
}
