// Package models defines the audit query engine's request and response shapes.
package models

import (
	"time"

	consentmodels "kycore/internal/consent/models"
)

// QueryParams carries the caller-supplied filters for an audit log query.
// Page numbering is 1-indexed.
type QueryParams struct {
	Q        string
	Action   consentmodels.Action
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// Normalize clamps pagination to sane bounds.
func (p *QueryParams) Normalize(defaultSize, maxSize int) {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = defaultSize
	}
	if p.PageSize > maxSize {
		p.PageSize = maxSize
	}
	if p.Action == "" {
		p.Action = consentmodels.ActionAll
	}
}

// Offset returns the number of records to skip for the requested page.
func (p QueryParams) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// Stats are institution-wide rollups computed over the scoped record set,
// ignoring the query's search, action, and date filters.
type Stats struct {
	GrantedCount int `json:"grantedCount"`
	RevokedCount int `json:"revokedCount"`
	TotalUsers   int `json:"totalUsers"`
	ActiveCount  int `json:"activeCount"`
}

// Entry is one audit log row. DocType is filled by best-effort document
// enrichment and stays nil when the user has no document or the lookup
// failed.
type Entry struct {
	LogID       string    `json:"logId"`
	UserEmail   string    `json:"userEmail"`
	UserName    string    `json:"userName"`
	Institution string    `json:"institution"`
	Action      string    `json:"action"`
	Timestamp   time.Time `json:"timestamp"`
	DocType     *string   `json:"docType"`
}

// Page is the full audit query result.
type Page struct {
	Items    []Entry `json:"items"`
	Total    int     `json:"total"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Stats    Stats   `json:"stats"`
}

// Detail is the expanded view of a single audit log entry, including the
// resolved document and a link into the external ledger viewer.
type Detail struct {
	Entry
	UserID     string  `json:"userId"`
	Status     string  `json:"status"`
	LedgerRef  string  `json:"ledgerRef"`
	LedgerLink string  `json:"ledgerLink,omitempty"`
	DocSHA256  *string `json:"docSha256"`
	DocStatus  *string `json:"docStatus"`
}
