package document

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycore/internal/document/models"
	"kycore/internal/document/store"
)

func TestLinker_LatestDocumentFor(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("returns the most recent document", func(t *testing.T) {
		st := store.NewInMemory()
		require.NoError(t, st.Save(ctx, &models.Summary{
			ID: uuid.New(), Email: "priya@example.com", DocType: "passport", UploadedAt: base,
		}))
		require.NoError(t, st.Save(ctx, &models.Summary{
			ID: uuid.New(), Email: "priya@example.com", DocType: "aadhaar", UploadedAt: base.Add(time.Hour),
		}))

		linker := NewLinker(st, nil)
		doc, err := linker.LatestDocumentFor(ctx, "priya@example.com")
		require.NoError(t, err)
		require.NotNil(t, doc)
		assert.Equal(t, "aadhaar", doc.DocType)
	})

	t.Run("no documents yields nil without error", func(t *testing.T) {
		linker := NewLinker(store.NewInMemory(), nil)
		doc, err := linker.LatestDocumentFor(ctx, "ghost@example.com")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("empty email yields nil without a store round trip", func(t *testing.T) {
		linker := NewLinker(nil, nil)
		doc, err := linker.LatestDocumentFor(ctx, "")
		require.NoError(t, err)
		assert.Nil(t, doc)
	})
}
