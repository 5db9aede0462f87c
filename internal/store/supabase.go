package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/tenancy"

	"github.com/google/uuid"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// SupabaseConfig holds Supabase connection configuration
type SupabaseConfig struct {
	URL    string
	APIKey string
}

// Supabase implements Repository through the PostgREST query builder.
type Supabase struct {
	client *supabase.Client
}

// NewSupabase creates a new Supabase-backed repository
func NewSupabase(cfg SupabaseConfig) (*Supabase, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}
	return &Supabase{client: client}, nil
}

func (s *Supabase) Name() string { return DriverSupabase }

// Close is a no-op; the client holds no pooled connections.
func (s *Supabase) Close() error { return nil }

func (s *Supabase) Ping(_ context.Context) error {
	var rows []struct {
		ID string `json:"id"`
	}
	_, err := s.client.From(tableCalls).
		Select("id", "", false).
		Limit(1, "").
		ExecuteTo(&rows)
	return apperrors.Store(err, "ping")
}

func (s *Supabase) InsertCall(_ context.Context, r calls.Record) (calls.Record, error) {
	var rows []calls.Record
	_, err := s.client.From(tableCalls).
		Insert(r, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		if isPostgrestConflict(err) {
			return calls.Record{}, apperrors.Conflict("Call already exists")
		}
		return calls.Record{}, apperrors.Store(err, "insert call")
	}
	if len(rows) == 0 {
		return r, nil
	}
	return rows[0], nil
}

func (s *Supabase) ListCalls(_ context.Context, f calls.Filter, p calls.Page) ([]calls.Record, int, error) {
	p = p.Normalize()
	if scopeIsEmpty(f.AgentIDs) {
		return []calls.Record{}, 0, nil
	}

	q := applyCallFilter(s.client.From(tableCalls).Select("*", "exact", false), f).
		Order("processed_at", &postgrest.OrderOpts{Ascending: false}).
		Range(p.Offset, p.Offset+p.Limit-1, "")

	var rows []calls.Record
	count, err := q.ExecuteTo(&rows)
	if err != nil {
		return nil, 0, apperrors.Store(err, "list calls")
	}
	if rows == nil {
		rows = []calls.Record{}
	}
	return rows, int(count), nil
}

func (s *Supabase) GetCall(_ context.Context, id string) (calls.Record, error) {
	var rows []calls.Record
	_, err := s.client.From(tableCalls).
		Select("*", "", false).
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return calls.Record{}, apperrors.Store(err, "get call")
	}
	if len(rows) == 0 {
		return calls.Record{}, apperrors.NotFound("Call not found")
	}
	return rows[0], nil
}

func (s *Supabase) UpdateCallFlag(_ context.Context, id string, flagged bool) (calls.Record, error) {
	var rows []calls.Record
	_, err := s.client.From(tableCalls).
		Update(map[string]any{"is_flagged_for_review": flagged}, "representation", "").
		Eq("id", id).
		ExecuteTo(&rows)
	if err != nil {
		return calls.Record{}, apperrors.Store(err, "update call flag")
	}
	if len(rows) == 0 {
		return calls.Record{}, apperrors.NotFound("Call not found")
	}
	return rows[0], nil
}

func (s *Supabase) ListCallsForStats(_ context.Context, agentIDs []string) ([]calls.Record, error) {
	if scopeIsEmpty(agentIDs) {
		return []calls.Record{}, nil
	}
	q := applyCallFilter(s.client.From(tableCalls).Select("*", "", false), calls.Filter{AgentIDs: agentIDs})

	var rows []calls.Record
	if _, err := q.ExecuteTo(&rows); err != nil {
		return nil, apperrors.Store(err, "list calls for stats")
	}
	if rows == nil {
		rows = []calls.Record{}
	}
	return rows, nil
}

func applyCallFilter(q *postgrest.FilterBuilder, f calls.Filter) *postgrest.FilterBuilder {
	if f.Search != "" {
		pat := postgrestQuote(ilikePattern(f.Search))
		q = q.Or(fmt.Sprintf("transcript.ilike.%s,caller_number.ilike.%s", pat, pat), "")
	}
	if f.Caller != "" {
		q = q.Ilike("caller_number", ilikePattern(f.Caller))
	}
	if f.ConversationID != "" {
		q = q.Ilike("id", ilikePattern(f.ConversationID))
	}
	if f.From != nil {
		q = q.Gte("timestamp", f.From.UTC().Format(time.RFC3339Nano))
	}
	if f.To != nil {
		q = q.Lte("timestamp", f.To.UTC().Format(time.RFC3339Nano))
	}
	if f.AgentIDs != nil {
		q = q.In("agent_id", f.AgentIDs)
	}
	return q
}

// ilikePattern builds a PostgREST substring pattern; "*" is its wildcard.
func ilikePattern(v string) string {
	v = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, "").Replace(v)
	return "*" + v + "*"
}

// postgrestQuote quotes a value for use inside an or=(...) list.
func postgrestQuote(v string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(v) + `"`
}

func isPostgrestConflict(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "duplicate key")
}

func (s *Supabase) CreateAgent(_ context.Context, a tenancy.AgentConfig) (tenancy.AgentConfig, error) {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var rows []tenancy.AgentConfig
	_, err := s.client.From(tableAgents).
		Insert(a, false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		if isPostgrestConflict(err) {
			return tenancy.AgentConfig{}, apperrors.Conflict("Agent already exists")
		}
		return tenancy.AgentConfig{}, apperrors.Store(err, "insert agent")
	}
	if len(rows) == 0 {
		return a, nil
	}
	return rows[0], nil
}

func (s *Supabase) ListAgents(_ context.Context) ([]tenancy.AgentConfig, error) {
	var rows []tenancy.AgentConfig
	_, err := s.client.From(tableAgents).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.Store(err, "list agents")
	}
	if rows == nil {
		rows = []tenancy.AgentConfig{}
	}
	return rows, nil
}

func (s *Supabase) GetAgentsByIDs(_ context.Context, ids []string) ([]tenancy.AgentConfig, error) {
	if len(ids) == 0 {
		return []tenancy.AgentConfig{}, nil
	}
	var rows []tenancy.AgentConfig
	_, err := s.client.From(tableAgents).
		Select("*", "", false).
		In("id", ids).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.Store(err, "get agents")
	}
	if rows == nil {
		rows = []tenancy.AgentConfig{}
	}
	return rows, nil
}

// userRow exposes password_hash to PostgREST; tenancy.DashboardUser hides it from JSON.
type userRow struct {
	ID              string    `json:"id"`
	Username        string    `json:"username"`
	PasswordHash    string    `json:"password_hash"`
	AllowedAgentIDs []string  `json:"allowed_agent_ids"`
	IsDeveloper     bool      `json:"is_developer"`
	CreatedAt       time.Time `json:"created_at"`
}

func toUserRow(u tenancy.DashboardUser) userRow {
	return userRow{
		ID:              u.ID,
		Username:        u.Username,
		PasswordHash:    u.PasswordHash,
		AllowedAgentIDs: u.AllowedAgentIDs,
		IsDeveloper:     u.IsDeveloper,
		CreatedAt:       u.CreatedAt,
	}
}

func (r userRow) user() tenancy.DashboardUser {
	agents := r.AllowedAgentIDs
	if agents == nil {
		agents = []string{}
	}
	return tenancy.DashboardUser{
		ID:              r.ID,
		Username:        r.Username,
		PasswordHash:    r.PasswordHash,
		AllowedAgentIDs: agents,
		IsDeveloper:     r.IsDeveloper,
		CreatedAt:       r.CreatedAt,
	}
}

func (s *Supabase) CreateUser(ctx context.Context, u tenancy.DashboardUser) (tenancy.DashboardUser, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AllowedAgentIDs == nil {
		u.AllowedAgentIDs = []string{}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	if len(u.AllowedAgentIDs) > 0 {
		found, err := s.GetAgentsByIDs(ctx, u.AllowedAgentIDs)
		if err != nil {
			return tenancy.DashboardUser{}, err
		}
		known := make(map[string]struct{}, len(found))
		for _, a := range found {
			known[a.ID] = struct{}{}
		}
		var missing []string
		for _, id := range u.AllowedAgentIDs {
			if _, ok := known[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return tenancy.DashboardUser{}, apperrors.Validation("Unknown agent id: " + strings.Join(missing, ", "))
		}
	}

	var rows []userRow
	_, err := s.client.From(tableUsers).
		Insert(toUserRow(u), false, "", "representation", "").
		ExecuteTo(&rows)
	if err != nil {
		if isPostgrestConflict(err) {
			return tenancy.DashboardUser{}, apperrors.Conflict("Username already exists")
		}
		return tenancy.DashboardUser{}, apperrors.Store(err, "insert user")
	}
	if len(rows) == 0 {
		return u, nil
	}
	return rows[0].user(), nil
}

func (s *Supabase) ListUsers(_ context.Context) ([]tenancy.DashboardUser, error) {
	var rows []userRow
	_, err := s.client.From(tableUsers).
		Select("*", "", false).
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		ExecuteTo(&rows)
	if err != nil {
		return nil, apperrors.Store(err, "list users")
	}
	out := make([]tenancy.DashboardUser, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.user())
	}
	return out, nil
}

func (s *Supabase) GetUserByUsername(_ context.Context, username string) (tenancy.DashboardUser, error) {
	var rows []userRow
	_, err := s.client.From(tableUsers).
		Select("*", "", false).
		Ilike("username", strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`, `*`, "").Replace(username)).
		ExecuteTo(&rows)
	if err != nil {
		return tenancy.DashboardUser{}, apperrors.Store(err, "get user")
	}
	if len(rows) == 0 {
		return tenancy.DashboardUser{}, apperrors.NotFound("User not found")
	}
	return rows[0].user(), nil
}

type auditRow struct {
	audit.Event
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (s *Supabase) AppendAuditEvent(_ context.Context, e audit.Event) error {
	row := auditRow{Event: e}
	if e.Metadata != "" {
		row.Metadata = json.RawMessage(e.Metadata)
	}
	var out []json.RawMessage
	_, err := s.client.From(tableAudit).
		Insert(row, false, "", "minimal", "").
		ExecuteTo(&out)
	return apperrors.Store(err, "append audit event")
}
