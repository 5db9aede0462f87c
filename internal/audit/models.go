package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Type and Actor are required.
// - Audit failures never block the audited action.
//
// Storage (Postgres): table audit_events with an INSERT-only policy.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// Actor is the dashboard username causing the event.
	Actor string `json:"actor" db:"actor"`
	// ActorRole is "developer" or "viewer".
	ActorRole string `json:"actor_role,omitempty" db:"actor_role"`

	// IPAddress and RequestID come from the request Origin; capture is best-effort.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	RequestID string `json:"request_id,omitempty" db:"request_id"`

	// Target identifiers (optional, depending on the event type).
	AgentID  string `json:"agent_id,omitempty" db:"agent_id"`
	CallID   string `json:"call_id,omitempty" db:"call_id"`
	Username string `json:"username,omitempty" db:"username"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAgentCreated EventType = "agent_created"
	EventTypeUserCreated  EventType = "user_created"
	EventTypeFlagUpdated  EventType = "call_flag_updated"
)

const (
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
)
