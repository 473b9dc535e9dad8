package audit

import "time"

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp   time.Time `json:"timestamp"`
	UserID      string    `json:"userId"`
	Subject     string    `json:"subject"`
	UserName    string    `json:"userName,omitempty"`
	Action      string    `json:"action"`
	Institution string    `json:"institution"`
	Decision    string    `json:"decision"`
	LedgerRef   string    `json:"ledgerRef,omitempty"`
	RequestID   string    `json:"requestId,omitempty"`
	Device      string    `json:"device,omitempty"`
	IP          string    `json:"ip,omitempty"`
}

const (
	ActionConsentGranted = "consent_granted"
	ActionConsentRevoked = "consent_revoked"
	ActionAccessDenied   = "access_denied"

	DecisionGranted = "granted"
	DecisionRevoked = "revoked"
	DecisionDenied  = "denied"
)
