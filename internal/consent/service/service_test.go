package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycore/internal/audit"
	"kycore/internal/consent/models"
	"kycore/internal/consent/store"
	dErrors "kycore/pkg/domain-errors"
)

// seqGenerator returns deterministic ledger receipts for assertions.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) Next(context.Context) (string, error) {
	g.n++
	return fmt.Sprintf("%064x", g.n), nil
}

// failingGenerator simulates ledger outages.
type failingGenerator struct{}

func (failingGenerator) Next(context.Context) (string, error) {
	return "", errors.New("ledger unavailable")
}

type fixture struct {
	svc     *Service
	store   *store.InMemoryStore
	auditor *audit.Publisher
	events  *audit.InMemoryStore
	clock   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := store.NewInMemory()
	events := audit.NewInMemoryStore()
	auditor := audit.NewPublisher(events)

	svc := NewService(st, &seqGenerator{}, auditor, nil,
		WithClock(func() time.Time { return now }),
	)
	f := &fixture{svc: svc, store: st, auditor: auditor, events: events, clock: &now}
	// Allow tests to advance time through the captured pointer.
	svc.now = func() time.Time { return *f.clock }
	return f
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

var testUser = models.User{ID: "user-1", Email: "priya@example.com", Name: "Priya Sharma"}

func TestService_Grant(t *testing.T) {
	ctx := context.Background()

	t.Run("first grant creates record with ledger receipt", func(t *testing.T) {
		f := newFixture(t)

		record, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		assert.Equal(t, models.StatusGranted, record.Status)
		assert.Equal(t, "hdfc bank", record.InstitutionKey)
		assert.Equal(t, "HDFC Bank", record.InstitutionName)
		assert.Equal(t, fmt.Sprintf("%064x", 1), record.LedgerRef)
		assert.Equal(t, *f.clock, record.LastUpdated)
	})

	t.Run("repeat grant fails as duplicate", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		_, err = f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateGrant))
	})

	t.Run("institution name is canonicalized for identity", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "  HDFC Bank  ")
		require.NoError(t, err)

		_, err = f.svc.Grant(ctx, testUser, "hdfc BANK")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDuplicateGrant))
	})

	t.Run("different institutions are independent", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		_, err = f.svc.Grant(ctx, testUser, "ICICI")
		require.NoError(t, err)

		records, err := f.svc.ListByUser(ctx, testUser.ID)
		require.NoError(t, err)
		assert.Len(t, records, 2)
	})

	t.Run("empty institution is rejected", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "   ")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("grant emits audit event", func(t *testing.T) {
		f := newFixture(t)

		record, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		events, err := f.events.ListByUser(ctx, testUser.ID)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.ActionConsentGranted, events[0].Action)
		assert.Equal(t, "priya@example.com", events[0].Subject)
		assert.Equal(t, record.LedgerRef, events[0].LedgerRef)
	})

	t.Run("ledger failure surfaces as internal error with cause", func(t *testing.T) {
		f := newFixture(t)
		f.svc.ledger = failingGenerator{}

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.ErrorContains(t, err, "ledger unavailable")
	})
}

func TestService_Revoke(t *testing.T) {
	ctx := context.Background()

	t.Run("revoke preserves ledger receipt", func(t *testing.T) {
		f := newFixture(t)

		granted, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		f.advance(time.Hour)
		revoked, err := f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		assert.Equal(t, models.StatusRevoked, revoked.Status)
		assert.Equal(t, granted.LedgerRef, revoked.LedgerRef)
		assert.Equal(t, *f.clock, revoked.LastUpdated)
	})

	t.Run("revoke without prior consent fails", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("revoking an already revoked consent restamps", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		first, err := f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		f.advance(time.Hour)
		second, err := f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		assert.True(t, second.LastUpdated.After(first.LastUpdated))
	})

	t.Run("revoke emits audit event", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		_, err = f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		events, err := f.events.ListByUser(ctx, testUser.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, audit.ActionConsentRevoked, events[1].Action)
	})
}

func TestService_Regrant(t *testing.T) {
	ctx := context.Background()

	t.Run("grant after revocation mints a fresh receipt", func(t *testing.T) {
		f := newFixture(t)

		first, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		_, err = f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		f.advance(time.Hour)
		second, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		assert.Equal(t, models.StatusGranted, second.Status)
		assert.NotEqual(t, first.LedgerRef, second.LedgerRef)
		assert.Equal(t, first.ID, second.ID, "record identity survives the toggle")
	})

	t.Run("regrant refreshes institution display casing", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)
		_, err = f.svc.Revoke(ctx, testUser, "HDFC Bank")
		require.NoError(t, err)

		record, err := f.svc.Grant(ctx, testUser, "HDFC BANK")
		require.NoError(t, err)
		assert.Equal(t, "HDFC BANK", record.InstitutionName)
		assert.Equal(t, "hdfc bank", record.InstitutionKey)
	})
}

func TestService_ListGrantedForInstitution(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	other := models.User{ID: "user-2", Email: "rahul@example.com", Name: "Rahul Verma"}

	_, err := f.svc.Grant(ctx, testUser, "HDFC Bank")
	require.NoError(t, err)
	_, err = f.svc.Grant(ctx, other, "HDFC Bank")
	require.NoError(t, err)
	_, err = f.svc.Revoke(ctx, other, "HDFC Bank")
	require.NoError(t, err)

	records, err := f.svc.ListGrantedForInstitution(ctx, "HDFC Bank")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, testUser.ID, records[0].UserID)
}
