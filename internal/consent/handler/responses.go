package handler

import (
	"time"

	"kycore/internal/consent/models"
)

// ConsentResponse is the wire representation of a consent record.
type ConsentResponse struct {
	ID          string    `json:"id"`
	Institution string    `json:"institution"`
	Status      string    `json:"status"`
	LedgerRef   string    `json:"ledgerRef,omitempty"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// ListResponse is the body for GET /consents.
type ListResponse struct {
	Consents []ConsentResponse `json:"consents"`
}

func formatConsent(record *models.Record) ConsentResponse {
	return ConsentResponse{
		ID:          record.ID.String(),
		Institution: record.InstitutionName,
		Status:      string(record.Status),
		LedgerRef:   record.LedgerRef,
		LastUpdated: record.LastUpdated,
	}
}

func formatConsents(records []*models.Record) []ConsentResponse {
	resp := make([]ConsentResponse, 0, len(records))
	for _, record := range records {
		resp = append(resp, formatConsent(record))
	}
	return resp
}
