package calls

import (
	"strings"
	"time"
)

// Sentinel identities used when the upstream payload does not carry one.
// Downstream display never shows an empty caller or agent.
const (
	UnknownCaller = "unknown_caller"
	UnknownAgent  = "unknown_agent"
)

// Record is one processed conversation.
//
// Invariants:
// - ID and Transcript are non-empty for every stored row.
// - ProcessedAt is always server-assigned.
// - After insert only IsFlaggedForReview changes; records are never deleted.
type Record struct {
	ID           string `json:"id" db:"id"`
	AgentID      string `json:"agent_id" db:"agent_id"`
	CallerNumber string `json:"caller_number" db:"caller_number"`
	Transcript   string `json:"transcript" db:"transcript"`

	Timestamp time.Time `json:"timestamp" db:"timestamp"`

	// Duration is the call duration in seconds; nil when the platform did not report it.
	Duration *int `json:"duration" db:"duration"`

	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`

	EvaluationResults EvaluationResults `json:"evaluation_results" db:"evaluation_results"`

	IsFlaggedForReview bool `json:"is_flagged_for_review" db:"is_flagged_for_review"`
}

// Filter narrows a record listing. Zero values mean "no constraint".
type Filter struct {
	// Search matches transcript or caller number, case-insensitive substring.
	Search string
	// Caller matches caller number, case-insensitive substring.
	Caller string
	// ConversationID matches the record id, case-insensitive substring.
	ConversationID string

	// From and To bound Timestamp inclusively.
	From *time.Time
	To   *time.Time

	// AgentIDs restricts to the given agents. Nil means unrestricted;
	// an empty non-nil slice matches nothing.
	AgentIDs []string
}

// Page is offset pagination.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500
)

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Matches reports whether r satisfies f. Backends without a query language use it directly.
func (f Filter) Matches(r Record) bool {
	if f.AgentIDs != nil && !containsString(f.AgentIDs, r.AgentID) {
		return false
	}
	if f.Search != "" && !containsFold(r.Transcript, f.Search) && !containsFold(r.CallerNumber, f.Search) {
		return false
	}
	if f.Caller != "" && !containsFold(r.CallerNumber, f.Caller) {
		return false
	}
	if f.ConversationID != "" && !containsFold(r.ID, f.ConversationID) {
		return false
	}
	if f.From != nil && r.Timestamp.Before(*f.From) {
		return false
	}
	if f.To != nil && r.Timestamp.After(*f.To) {
		return false
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
