package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"kycore/internal/consent/models"
	"kycore/internal/platform/middleware"
	dErrors "kycore/pkg/domain-errors"
	"kycore/pkg/platform/httputil"
)

// Service defines the interface for consent operations.
type Service interface {
	Grant(ctx context.Context, user models.User, institution string) (*models.Record, error)
	Revoke(ctx context.Context, user models.User, institution string) (*models.Record, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Record, error)
}

// Handler handles consent lifecycle endpoints for authenticated users.
type Handler struct {
	logger  *slog.Logger
	consent Service
}

// New creates a new consent Handler.
func New(consent Service, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		consent: consent,
	}
}

// Register registers the consent routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/consents/grant", h.handleGrant)
	r.Post("/consents/revoke", h.handleRevoke)
	r.Get("/consents", h.handleList)
}

func (h *Handler) handleGrant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := identityUser(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := httputil.DecodeJSON[GrantRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.Grant(ctx, user, req.Institution)
	if err != nil {
		h.logError(ctx, "failed to grant consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, formatConsent(record))
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := identityUser(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "identity missing from context despite auth middleware",
			"request_id", middleware.GetRequestID(ctx),
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	req, err := httputil.DecodeJSON[RevokeRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	record, err := h.consent.Revoke(ctx, user, req.Institution)
	if err != nil {
		h.logError(ctx, "failed to revoke consent", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, formatConsent(record))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, ok := identityUser(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInternal, "authentication context error"))
		return
	}

	records, err := h.consent.ListByUser(ctx, user.ID)
	if err != nil {
		h.logError(ctx, "failed to list consents", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, ListResponse{Consents: formatConsents(records)})
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

func identityUser(ctx context.Context) (models.User, bool) {
	ident, ok := middleware.GetIdentity(ctx)
	if !ok || ident.UserID == "" {
		return models.User{}, false
	}
	return models.User{ID: ident.UserID, Email: ident.Email, Name: ident.Name}, true
}
