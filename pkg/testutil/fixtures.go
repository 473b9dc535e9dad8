package testutil

import (
	"time"

	"github.com/google/uuid"

	"kycore/internal/consent/models"
)

// ConsentBuilder provides a fluent interface for building test consent records.
type ConsentBuilder struct {
	record *models.Record
}

// NewConsentBuilder creates a new ConsentBuilder with sensible defaults.
func NewConsentBuilder() *ConsentBuilder {
	return &ConsentBuilder{
		record: &models.Record{
			ID:              uuid.New(),
			UserID:          "user-" + uuid.NewString(),
			UserEmail:       "test@example.com",
			UserName:        "Test User",
			InstitutionKey:  "hdfc bank",
			InstitutionName: "HDFC Bank",
			Status:          models.StatusGranted,
			LedgerRef:       "0f" + uuid.NewString()[:6],
			LastUpdated:     time.Now().UTC(),
		},
	}
}

func (b *ConsentBuilder) WithID(id uuid.UUID) *ConsentBuilder {
	b.record.ID = id
	return b
}

func (b *ConsentBuilder) WithUser(userID, email, name string) *ConsentBuilder {
	b.record.UserID = userID
	b.record.UserEmail = email
	b.record.UserName = name
	return b
}

func (b *ConsentBuilder) WithInstitution(display string) *ConsentBuilder {
	b.record.InstitutionKey = models.NormalizeInstitution(display)
	b.record.InstitutionName = models.DisplayInstitution(display)
	return b
}

func (b *ConsentBuilder) WithStatus(status models.Status) *ConsentBuilder {
	b.record.Status = status
	return b
}

func (b *ConsentBuilder) WithLedgerRef(ref string) *ConsentBuilder {
	b.record.LedgerRef = ref
	return b
}

func (b *ConsentBuilder) UpdatedAt(t time.Time) *ConsentBuilder {
	b.record.LastUpdated = t
	return b
}

func (b *ConsentBuilder) Build() *models.Record {
	return b.record
}

// NewTestConsent creates a granted consent for the given user and institution.
func NewTestConsent(userID, email, institution string) *models.Record {
	return NewConsentBuilder().
		WithUser(userID, email, "Test User").
		WithInstitution(institution).
		Build()
}
