package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "kycore/pkg/domain-errors"
)

// Status is the consent lifecycle state. There are exactly two states; a
// record is created by the first grant and toggled thereafter.
type Status string

const (
	StatusGranted Status = "granted"
	StatusRevoked Status = "revoked"
)

// ParseStatus validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusGranted:
		return StatusGranted, nil
	case StatusRevoked:
		return StatusRevoked, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "invalid status: "+s)
	}
}

// Action labels a consent-change event in the verification log.
type Action string

const (
	ActionAll     Action = "all"
	ActionGranted Action = "consent_granted"
	ActionRevoked Action = "consent_revoked"
)

// ParseAction validates an action filter value. Empty means "all".
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case "", ActionAll:
		return ActionAll, nil
	case ActionGranted:
		return ActionGranted, nil
	case ActionRevoked:
		return ActionRevoked, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "invalid action filter: "+s)
	}
}

// Record is the durable statement that a user authorized (or later revoked
// authorization for) a specific institution.
//
// # Uniqueness Invariant
//
// At most one Record exists per (UserID, InstitutionKey) pair. InstitutionKey
// is the canonicalized institution name; InstitutionName keeps the casing the
// user last supplied, for presentation only. The store layer enforces the pair
// atomically so concurrent first grants resolve to exactly one row.
type Record struct {
	ID              uuid.UUID
	UserID          string
	UserEmail       string
	UserName        string
	InstitutionKey  string
	InstitutionName string
	Status          Status
	LedgerRef       string
	LastUpdated     time.Time
}

// Action maps the record state to its verification-log action label.
func (r Record) Action() Action {
	if r.Status == StatusGranted {
		return ActionGranted
	}
	return ActionRevoked
}

// User is the denormalized snapshot of the consenting party captured at grant
// time, used for search and display without a join.
type User struct {
	ID    string
	Email string
	Name  string
}

// NormalizeInstitution canonicalizes an institution name into the matching and
// uniqueness key: surrounding whitespace removed, case folded.
func NormalizeInstitution(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// DisplayInstitution trims an institution name but keeps its casing.
func DisplayInstitution(raw string) string {
	return strings.TrimSpace(raw)
}

// likeEscaper neutralizes LIKE/ILIKE pattern characters so user-supplied
// institution names and search terms cannot inject wildcards.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes a string for safe use inside a LIKE pattern with the
// default backslash escape character.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Filter describes a verification-log query. Institution scoping matches the
// caller's canonical name as a case-insensitive substring of either the stored
// key or the stored display name, tolerating punctuation and abbreviation
// drift between registrations.
type Filter struct {
	// Institution is the caller's institution name (raw; stores canonicalize it).
	Institution string
	// Search is a case-insensitive substring matched against user email or name.
	Search string
	// Action narrows to grants or revocations. ActionAll keeps both.
	Action Action
	// From and To bound LastUpdated inclusively. Nil means unbounded.
	From *time.Time
	To   *time.Time
}

// ScopeOnly strips the row-level filters, keeping just the institution scope.
// Rollup statistics are computed over this wider set.
func (f Filter) ScopeOnly() Filter {
	return Filter{Institution: f.Institution, Action: ActionAll}
}

// MatchesScope reports whether a record belongs to the filter's institution.
func (f Filter) MatchesScope(r *Record) bool {
	needle := NormalizeInstitution(f.Institution)
	if needle == "" {
		return false
	}
	return strings.Contains(r.InstitutionKey, needle) ||
		strings.Contains(strings.ToLower(r.InstitutionName), needle)
}

// Matches reports whether a record satisfies the full filter set.
func (f Filter) Matches(r *Record) bool {
	if !f.MatchesScope(r) {
		return false
	}
	if f.Action != "" && f.Action != ActionAll && r.Action() != f.Action {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(strings.TrimSpace(f.Search))
		if !strings.Contains(strings.ToLower(r.UserEmail), needle) &&
			!strings.Contains(strings.ToLower(r.UserName), needle) {
			return false
		}
	}
	if f.From != nil && r.LastUpdated.Before(*f.From) {
		return false
	}
	if f.To != nil && r.LastUpdated.After(*f.To) {
		return false
	}
	return true
}
