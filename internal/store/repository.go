package store

import (
	"context"
	"errors"
	"fmt"

	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/tenancy"
)

// Repository is the record store gateway. It performs no business logic.
//
// Rules:
// - Driver failures are returned as apperrors.ErrStore; unknown ids as apperrors.ErrNotFound.
// - Duplicate unique keys are apperrors.ErrConflict.
// - A nil agent id slice means unrestricted; an empty non-nil slice matches nothing.
// - Listings order by insertion time, newest first.
type Repository interface {
	InsertCall(ctx context.Context, r calls.Record) (calls.Record, error)
	ListCalls(ctx context.Context, f calls.Filter, p calls.Page) ([]calls.Record, int, error)
	GetCall(ctx context.Context, id string) (calls.Record, error)
	UpdateCallFlag(ctx context.Context, id string, flagged bool) (calls.Record, error)
	// ListCallsForStats returns every record within the agent scope.
	ListCallsForStats(ctx context.Context, agentIDs []string) ([]calls.Record, error)

	CreateAgent(ctx context.Context, a tenancy.AgentConfig) (tenancy.AgentConfig, error)
	ListAgents(ctx context.Context) ([]tenancy.AgentConfig, error)
	GetAgentsByIDs(ctx context.Context, ids []string) ([]tenancy.AgentConfig, error)

	CreateUser(ctx context.Context, u tenancy.DashboardUser) (tenancy.DashboardUser, error)
	// ListUsers includes password hashes; only the access gate reads them.
	ListUsers(ctx context.Context) ([]tenancy.DashboardUser, error)
	GetUserByUsername(ctx context.Context, username string) (tenancy.DashboardUser, error)

	AppendAuditEvent(ctx context.Context, e audit.Event) error

	Name() string
	Ping(ctx context.Context) error
	Close() error
}

// Driver names accepted by STORE_DRIVER.
const (
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
	DriverMemory   = "memory"
)

var ErrUnknownDriver = errors.New("store: unknown driver")

// Names the three logical tables.
const (
	tableCalls  = "calls"
	tableAgents = "agent_configs"
	tableUsers  = "dashboard_users"
	tableAudit  = "audit_events"
)

// scopeIsEmpty reports whether an agent scope can match nothing.
func scopeIsEmpty(agentIDs []string) bool {
	return agentIDs != nil && len(agentIDs) == 0
}

func errUnknownDriver(name string) error {
	return fmt.Errorf("%w: %q", ErrUnknownDriver, name)
}
