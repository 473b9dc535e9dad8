package handler

import (
	"time"

	consentmodels "kycore/internal/consent/models"
)

// GrantedConsentResponse is one row of GET /institution/consents.
type GrantedConsentResponse struct {
	UserID      string    `json:"userId"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Institution string    `json:"institution"`
	LedgerRef   string    `json:"ledgerRef,omitempty"`
	GrantedAt   time.Time `json:"grantedAt"`
}

// GrantedConsentsResponse is the body for GET /institution/consents.
type GrantedConsentsResponse struct {
	Consents []GrantedConsentResponse `json:"consents"`
}

func formatGrantedConsents(records []*consentmodels.Record) GrantedConsentsResponse {
	resp := GrantedConsentsResponse{Consents: make([]GrantedConsentResponse, 0, len(records))}
	for _, record := range records {
		resp.Consents = append(resp.Consents, GrantedConsentResponse{
			UserID:      record.UserID,
			Email:       record.UserEmail,
			Name:        record.UserName,
			Institution: record.InstitutionName,
			LedgerRef:   record.LedgerRef,
			GrantedAt:   record.LastUpdated,
		})
	}
	return resp
}
