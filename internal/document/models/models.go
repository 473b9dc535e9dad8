// Package models holds the document metadata consumed for audit enrichment.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Summary is the read-only view of a user's uploaded identity document.
// The verification pipeline that produces these rows lives outside this
// service; we only ever read the most recent one per email.
type Summary struct {
	ID         uuid.UUID
	Email      string
	DocType    string
	SHA256     string
	Status     string
	UploadedAt time.Time
}
