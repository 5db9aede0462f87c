package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/tenancy"

	"github.com/google/uuid"
)

// Memory is an in-process Repository for local development and tests.
// It is not intended for production use.
type Memory struct {
	mu sync.RWMutex

	calls  map[string]calls.Record
	seq    map[string]uint64 // insertion order, breaks processed_at ties
	next   uint64
	agents map[string]tenancy.AgentConfig
	users  map[string]tenancy.DashboardUser // key: username

	audit []audit.Event
	now   func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		calls:  make(map[string]calls.Record),
		seq:    make(map[string]uint64),
		agents: make(map[string]tenancy.AgentConfig),
		users:  make(map[string]tenancy.DashboardUser),
		now:    time.Now,
	}
}

func (m *Memory) Name() string { return DriverMemory }
func (m *Memory) Ping(_ context.Context) error { return nil }
func (m *Memory) Close() error { return nil }

// AuditEvents returns a copy of the audit trail, oldest first.
func (m *Memory) AuditEvents() []audit.Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]audit.Event(nil), m.audit...)
}

func (m *Memory) InsertCall(_ context.Context, r calls.Record) (calls.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.calls[r.ID]; ok {
		return calls.Record{}, apperrors.Conflict("Call already exists")
	}
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = m.now().UTC()
	}
	m.next++
	m.seq[r.ID] = m.next
	m.calls[r.ID] = cloneRecord(r)
	return cloneRecord(r), nil
}

func (m *Memory) ListCalls(_ context.Context, f calls.Filter, p calls.Page) ([]calls.Record, int, error) {
	p = p.Normalize()

	m.mu.RLock()
	defer m.mu.RUnlock()

	matched := m.sortedLocked(func(r calls.Record) bool { return f.Matches(r) })
	total := len(matched)
	if p.Offset >= total {
		return []calls.Record{}, total, nil
	}
	end := p.Offset + p.Limit
	if end > total {
		end = total
	}
	return matched[p.Offset:end], total, nil
}

func (m *Memory) GetCall(_ context.Context, id string) (calls.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.calls[id]
	if !ok {
		return calls.Record{}, apperrors.NotFound("Call not found")
	}
	return cloneRecord(r), nil
}

func (m *Memory) UpdateCallFlag(_ context.Context, id string, flagged bool) (calls.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.calls[id]
	if !ok {
		return calls.Record{}, apperrors.NotFound("Call not found")
	}
	r.IsFlaggedForReview = flagged
	m.calls[id] = r
	return cloneRecord(r), nil
}

func (m *Memory) ListCallsForStats(_ context.Context, agentIDs []string) ([]calls.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f := calls.Filter{AgentIDs: agentIDs}
	return m.sortedLocked(f.Matches), nil
}

// sortedLocked returns matching records newest first. Caller holds m.mu.
func (m *Memory) sortedLocked(keep func(calls.Record) bool) []calls.Record {
	out := make([]calls.Record, 0, len(m.calls))
	for _, r := range m.calls {
		if keep(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.After(out[j].ProcessedAt)
		}
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	return out
}

func (m *Memory) CreateAgent(_ context.Context, a tenancy.AgentConfig) (tenancy.AgentConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[a.ID]; ok {
		return tenancy.AgentConfig{}, apperrors.Conflict("Agent already exists")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.now().UTC()
	}
	m.agents[a.ID] = a
	return a, nil
}

func (m *Memory) ListAgents(_ context.Context) ([]tenancy.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]tenancy.AgentConfig, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, a)
	}
	sortAgents(out)
	return out, nil
}

func (m *Memory) GetAgentsByIDs(_ context.Context, ids []string) ([]tenancy.AgentConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]tenancy.AgentConfig, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			out = append(out, a)
		}
	}
	sortAgents(out)
	return out, nil
}

func (m *Memory) CreateUser(_ context.Context, u tenancy.DashboardUser) (tenancy.DashboardUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(u.Username)
	if _, ok := m.users[key]; ok {
		return tenancy.DashboardUser{}, apperrors.Conflict("Username already exists")
	}
	for _, id := range u.AllowedAgentIDs {
		if _, ok := m.agents[id]; !ok {
			return tenancy.DashboardUser{}, apperrors.Validation("Unknown agent id: " + id)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = m.now().UTC()
	}
	u.AllowedAgentIDs = append([]string(nil), u.AllowedAgentIDs...)
	m.users[key] = u
	return u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]tenancy.DashboardUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]tenancy.DashboardUser, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (tenancy.DashboardUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[strings.ToLower(username)]
	if !ok {
		return tenancy.DashboardUser{}, apperrors.NotFound("User not found")
	}
	return u, nil
}

func (m *Memory) AppendAuditEvent(_ context.Context, e audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func cloneRecord(r calls.Record) calls.Record {
	if r.Duration != nil {
		d := *r.Duration
		r.Duration = &d
	}
	if r.EvaluationResults != nil {
		ev := make(calls.EvaluationResults, len(r.EvaluationResults))
		for k, v := range r.EvaluationResults {
			ev[k] = v
		}
		r.EvaluationResults = ev
	}
	return r
}

func sortAgents(a []tenancy.AgentConfig) {
	sort.Slice(a, func(i, j int) bool {
		if !a[i].CreatedAt.Equal(a[j].CreatedAt) {
			return a[i].CreatedAt.After(a[j].CreatedAt)
		}
		return a[i].ID < a[j].ID
	})
}
