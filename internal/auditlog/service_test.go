package auditlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycore/internal/audit"
	"kycore/internal/auditlog/models"
	consentmodels "kycore/internal/consent/models"
	"kycore/internal/consent/store"
	docmodels "kycore/internal/document/models"
)

// fakeLinker resolves documents from a map and can fail per email.
type fakeLinker struct {
	docs map[string]string
	fail map[string]bool
}

func (l *fakeLinker) LatestDocumentFor(_ context.Context, email string) (*docmodels.Summary, error) {
	if l.fail[email] {
		return nil, errors.New("document store unavailable")
	}
	docType, ok := l.docs[email]
	if !ok {
		return nil, nil
	}
	return &docmodels.Summary{Email: email, DocType: docType, SHA256: "abc123", Status: "verified"}, nil
}

func seedRecord(t *testing.T, st *store.InMemoryStore, email, name, institution string, status consentmodels.Status, updated time.Time) *consentmodels.Record {
	t.Helper()
	record := &consentmodels.Record{
		ID:              uuid.New(),
		UserID:          "user-" + email,
		UserEmail:       email,
		UserName:        name,
		InstitutionKey:  consentmodels.NormalizeInstitution(institution),
		InstitutionName: consentmodels.DisplayInstitution(institution),
		Status:          status,
		LedgerRef:       "ref-" + email,
		LastUpdated:     updated,
	}
	require.NoError(t, st.Create(context.Background(), record))
	return record
}

func newEngine(st *store.InMemoryStore, linker DocumentLinker, opts ...Option) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, linker, logger, opts...)
}

func TestService_Query_Scenario(t *testing.T) {
	// User A grants "HDFC Bank"; user B grants "hdfc bank " then revokes.
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()

	seedRecord(t, st, "a@example.com", "User A", "HDFC Bank", consentmodels.StatusGranted, base)
	seedRecord(t, st, "b@example.com", "User B", "hdfc bank ", consentmodels.StatusRevoked, base.Add(time.Hour))

	svc := newEngine(st, nil)
	page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 1, page.Stats.GrantedCount)
	assert.Equal(t, 1, page.Stats.RevokedCount)
	assert.Equal(t, 2, page.Stats.TotalUsers)
	assert.Equal(t, 1, page.Stats.ActiveCount)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "b@example.com", page.Items[0].UserEmail, "most recent first")
}

func TestService_Query_ActiveCountIsLatestStatePerUser(t *testing.T) {
	// A user who granted then revoked must not count as active even though
	// a granted row exists for another user.
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()

	// c granted and stayed granted. d holds an older granted row under one
	// scoped name and a newer revoked row under another; only the most
	// recent state counts.
	seedRecord(t, st, "c@example.com", "User C", "ICICI", consentmodels.StatusGranted, base)
	seedRecord(t, st, "d@example.com", "User D", "ICICI", consentmodels.StatusGranted, base.Add(time.Hour))
	seedRecord(t, st, "d@example.com", "User D", "ICICI Bank Ltd", consentmodels.StatusRevoked, base.Add(2*time.Hour))

	svc := newEngine(st, nil)
	page, err := svc.Query(ctx, "ICICI", models.QueryParams{})
	require.NoError(t, err)

	assert.Equal(t, 2, page.Stats.TotalUsers)
	assert.Equal(t, 1, page.Stats.ActiveCount)
	assert.Equal(t, 2, page.Stats.GrantedCount, "historical granted rows still count in grantedCount")
}

func TestService_Query_Pagination(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()

	const n = 7
	for i := 0; i < n; i++ {
		email := fmt.Sprintf("user%d@example.com", i)
		seedRecord(t, st, email, "User", "HDFC Bank", consentmodels.StatusGranted, base.Add(time.Duration(i)*time.Minute))
	}

	svc := newEngine(st, nil)

	t.Run("total is invariant to page and pageSize", func(t *testing.T) {
		for _, params := range []models.QueryParams{
			{Page: 1, PageSize: 3},
			{Page: 2, PageSize: 3},
			{Page: 1, PageSize: 100},
		} {
			page, err := svc.Query(ctx, "HDFC Bank", params)
			require.NoError(t, err)
			assert.Equal(t, n, page.Total)
		}
	})

	t.Run("page-by-page walk covers the set in order", func(t *testing.T) {
		var seen []string
		var last time.Time
		for p := 1; p <= n; p++ {
			page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{Page: p, PageSize: 1})
			require.NoError(t, err)
			require.Len(t, page.Items, 1)
			item := page.Items[0]
			if p > 1 {
				assert.False(t, item.Timestamp.After(last), "timestamps must be non-increasing")
			}
			last = item.Timestamp
			seen = append(seen, item.LogID)
		}
		unique := make(map[string]struct{}, len(seen))
		for _, id := range seen {
			unique[id] = struct{}{}
		}
		assert.Len(t, unique, n, "no omissions or duplicates")
	})

	t.Run("page past the end is empty but keeps total", func(t *testing.T) {
		page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{Page: 50, PageSize: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Items)
		assert.Equal(t, n, page.Total)
	})
}

func TestService_Query_Filters(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()

	seedRecord(t, st, "priya@example.com", "Priya Sharma", "HDFC Bank", consentmodels.StatusGranted, base)
	seedRecord(t, st, "rahul@example.com", "Rahul Verma", "HDFC Bank", consentmodels.StatusRevoked, base.Add(time.Hour))

	svc := newEngine(st, nil)

	t.Run("free text search filters items but not stats", func(t *testing.T) {
		page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{Q: "priya"})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "priya@example.com", page.Items[0].UserEmail)
		// Stats always describe the whole institution.
		assert.Equal(t, 2, page.Stats.TotalUsers)
	})

	t.Run("action filter", func(t *testing.T) {
		page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{Action: consentmodels.ActionRevoked})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "consent_revoked", page.Items[0].Action)
	})

	t.Run("inclusive date range", func(t *testing.T) {
		from := base.Add(time.Hour)
		page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{From: &from})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total)
	})
}

func TestService_Query_Enrichment(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()

	seedRecord(t, st, "priya@example.com", "Priya Sharma", "HDFC Bank", consentmodels.StatusGranted, base)
	seedRecord(t, st, "rahul@example.com", "Rahul Verma", "HDFC Bank", consentmodels.StatusGranted, base.Add(time.Hour))
	seedRecord(t, st, "anita@example.com", "Anita Desai", "HDFC Bank", consentmodels.StatusGranted, base.Add(2*time.Hour))

	linker := &fakeLinker{
		docs: map[string]string{"priya@example.com": "passport"},
		fail: map[string]bool{"rahul@example.com": true},
	}

	svc := newEngine(st, linker)
	page, err := svc.Query(ctx, "HDFC Bank", models.QueryParams{})
	require.NoError(t, err, "enrichment failures must not fail the query")
	require.Len(t, page.Items, 3)

	byEmail := make(map[string]models.Entry, 3)
	for _, item := range page.Items {
		byEmail[item.UserEmail] = item
	}
	require.NotNil(t, byEmail["priya@example.com"].DocType)
	assert.Equal(t, "passport", *byEmail["priya@example.com"].DocType)
	assert.Nil(t, byEmail["rahul@example.com"].DocType, "failed lookup leaves field nil")
	assert.Nil(t, byEmail["anita@example.com"].DocType, "no document leaves field nil")
}

func TestService_Detail(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns record with document and ledger link", func(t *testing.T) {
		st := store.NewInMemory()
		record := seedRecord(t, st, "priya@example.com", "Priya Sharma", "HDFC Bank", consentmodels.StatusGranted, base)

		linker := &fakeLinker{docs: map[string]string{"priya@example.com": "passport"}}
		svc := newEngine(st, linker, WithLedgerExplorerURL("https://ledger.example.com"))

		detail, err := svc.Detail(ctx, "HDFC Bank", record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID.String(), detail.LogID)
		assert.Equal(t, "granted", detail.Status)
		assert.Equal(t, "https://ledger.example.com/tx/"+record.LedgerRef, detail.LedgerLink)
		require.NotNil(t, detail.DocSHA256)
		assert.Equal(t, "abc123", *detail.DocSHA256)
		require.NotNil(t, detail.DocStatus)
		assert.Equal(t, "verified", *detail.DocStatus)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		svc := newEngine(store.NewInMemory(), nil)
		_, err := svc.Detail(ctx, "HDFC Bank", uuid.New())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("record outside the caller's scope is denied", func(t *testing.T) {
		st := store.NewInMemory()
		record := seedRecord(t, st, "priya@example.com", "Priya Sharma", "HDFC Bank", consentmodels.StatusGranted, base)

		events := audit.NewInMemoryStore()
		svc := newEngine(st, nil, WithAuditor(audit.NewPublisher(events)))
		_, err := svc.Detail(ctx, "ICICI", record.ID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "another institution")

		recorded, err := events.ListByUser(ctx, record.UserID)
		require.NoError(t, err)
		require.Len(t, recorded, 1)
		assert.Equal(t, audit.ActionAccessDenied, recorded[0].Action)
		assert.Equal(t, audit.DecisionDenied, recorded[0].Decision)
		assert.Equal(t, "ICICI", recorded[0].Institution)
	})

	t.Run("substring scope admits abbreviated names", func(t *testing.T) {
		st := store.NewInMemory()
		record := seedRecord(t, st, "priya@example.com", "Priya Sharma", "State Bank of India (SBI)", consentmodels.StatusGranted, base)

		svc := newEngine(st, nil)
		detail, err := svc.Detail(ctx, "State Bank of India", record.ID)
		require.NoError(t, err)
		assert.Equal(t, record.ID.String(), detail.LogID)
	})
}
