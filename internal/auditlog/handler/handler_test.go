package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"kycore/internal/auditlog/handler/mocks"
	"kycore/internal/auditlog/models"
	consentmodels "kycore/internal/consent/models"
	"kycore/internal/platform/middleware"
	dErrors "kycore/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/auditlog-mocks.go -package=mocks Service
type AuditHandlerSuite struct {
	suite.Suite
}

func TestAuditHandlerSuite(t *testing.T) {
	suite.Run(t, new(AuditHandlerSuite))
}

var institutionIdentity = middleware.Identity{
	UserID:      "inst-1",
	Email:       "ops@hdfc.example.com",
	Name:        "HDFC Ops",
	Role:        middleware.RoleInstitution,
	Institution: "HDFC Bank",
}

func newTestRouter(t *testing.T) (chi.Router, *mocks.MockService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mockService := mocks.NewMockService(ctrl)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := New(mockService, logger)
	r := chi.NewRouter()
	h.Register(r)
	return r, mockService
}

func newRequest(endpoint string, ident *middleware.Identity) *http.Request {
	req := httptest.NewRequest(http.MethodGet, endpoint, nil)
	if ident != nil {
		req = req.WithContext(middleware.WithIdentity(req.Context(), *ident))
	}
	return req
}

func (s *AuditHandlerSuite) TestHandleQuery() {
	s.T().Run("200 - passes parsed filters to the engine", func(t *testing.T) {
		r, mockService := newTestRouter(t)

		from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		wantParams := models.QueryParams{
			Q:      "priya",
			Action: consentmodels.ActionGranted,
			From:   &from,
			Page:   2, PageSize: 5,
		}
		mockService.EXPECT().
			Query(gomock.Any(), "HDFC Bank", wantParams).
			Return(&models.Page{Items: []models.Entry{}, Total: 0, Page: 2, PageSize: 5}, nil)

		req := newRequest("/institution/audit-logs?q=priya&action=consent_granted&from=2026-03-01T00:00:00Z&page=2&pageSize=5", &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.Page
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.Page)
	})

	s.T().Run("400 - invalid action filter", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := newRequest("/institution/audit-logs?action=bogus", &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("400 - invalid date", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := newRequest("/institution/audit-logs?from=yesterday", &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	s.T().Run("403 - user role has no institution scope", func(t *testing.T) {
		r, _ := newTestRouter(t)

		userIdent := middleware.Identity{UserID: "user-1", Role: middleware.RoleUser}
		req := newRequest("/institution/audit-logs", &userIdent)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func (s *AuditHandlerSuite) TestHandleDetail() {
	s.T().Run("200 - returns detail", func(t *testing.T) {
		r, mockService := newTestRouter(t)

		logID := uuid.New()
		mockService.EXPECT().
			Detail(gomock.Any(), "HDFC Bank", logID).
			Return(&models.Detail{
				Entry:     models.Entry{LogID: logID.String(), UserEmail: "priya@example.com"},
				Status:    "granted",
				LedgerRef: "deadbeef",
			}, nil)

		req := newRequest("/institution/audit-logs/"+logID.String(), &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp models.Detail
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "deadbeef", resp.LedgerRef)
	})

	s.T().Run("404 - malformed id", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := newRequest("/institution/audit-logs/not-a-uuid", &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusNotFound, w.Code)
	})

	s.T().Run("403 - cross-institution record", func(t *testing.T) {
		r, mockService := newTestRouter(t)

		logID := uuid.New()
		mockService.EXPECT().
			Detail(gomock.Any(), "HDFC Bank", logID).
			Return(nil, dErrors.New(dErrors.CodeForbidden, "audit log entry belongs to another institution"))

		req := newRequest("/institution/audit-logs/"+logID.String(), &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
	})
}

func (s *AuditHandlerSuite) TestHandleConsents() {
	s.T().Run("200 - lists granted consents", func(t *testing.T) {
		r, mockService := newTestRouter(t)

		mockService.EXPECT().
			Consents(gomock.Any(), "HDFC Bank").
			Return([]*consentmodels.Record{
				{
					ID:              uuid.New(),
					UserID:          "user-1",
					UserEmail:       "priya@example.com",
					UserName:        "Priya Sharma",
					InstitutionName: "HDFC Bank",
					Status:          consentmodels.StatusGranted,
					LedgerRef:       "deadbeef",
					LastUpdated:     time.Now().UTC(),
				},
			}, nil)

		req := newRequest("/institution/consents", &institutionIdentity)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		var resp GrantedConsentsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.Len(t, resp.Consents, 1)
		assert.Equal(t, "priya@example.com", resp.Consents[0].Email)
	})

	s.T().Run("403 - unauthenticated", func(t *testing.T) {
		r, _ := newTestRouter(t)

		req := newRequest("/institution/consents", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		require.Equal(t, http.StatusForbidden, w.Code)
	})
}
