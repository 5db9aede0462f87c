package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/tenancy"
	"calllog-dashboard/pkg/utils"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const agentColumns = `id, branding_name, evaluation_criteria_config, created_at`

func (p *Postgres) CreateAgent(ctx context.Context, a tenancy.AgentConfig) (tenancy.AgentConfig, error) {
	q := `
INSERT INTO agent_configs (id, branding_name, evaluation_criteria_config, created_at)
VALUES ($1,$2,$3,$4)
RETURNING ` + agentColumns

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cfg, err := marshalNullableJSON(a.EvaluationCriteriaConfig)
	if err != nil {
		return tenancy.AgentConfig{}, apperrors.Internal(err, "encode evaluation criteria")
	}
	out, err := scanAgent(p.db.QueryRowContext(ctx, q, a.ID, a.BrandingName, cfg, a.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return tenancy.AgentConfig{}, apperrors.Conflict("Agent already exists")
		}
		return tenancy.AgentConfig{}, apperrors.Store(err, "insert agent")
	}
	return out, nil
}

func (p *Postgres) ListAgents(ctx context.Context) ([]tenancy.AgentConfig, error) {
	q := `SELECT ` + agentColumns + ` FROM agent_configs ORDER BY created_at DESC, id`
	return p.queryAgents(ctx, q)
}

func (p *Postgres) GetAgentsByIDs(ctx context.Context, ids []string) ([]tenancy.AgentConfig, error) {
	if len(ids) == 0 {
		return []tenancy.AgentConfig{}, nil
	}
	q := `SELECT ` + agentColumns + ` FROM agent_configs WHERE id = ANY($1) ORDER BY created_at DESC, id`
	return p.queryAgents(ctx, q, pq.StringArray(ids))
}

func (p *Postgres) queryAgents(ctx context.Context, q string, args ...any) ([]tenancy.AgentConfig, error) {
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Store(err, "list agents")
	}
	defer rows.Close()

	out := make([]tenancy.AgentConfig, 0)
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, apperrors.Store(err, "list agents")
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store(err, "list agents")
	}
	return out, nil
}

const userColumns = `id, username, password_hash, allowed_agent_ids, is_developer, created_at`

// CreateUser verifies every allowed agent exists and inserts the user in one transaction.
func (p *Postgres) CreateUser(ctx context.Context, u tenancy.DashboardUser) (tenancy.DashboardUser, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.AllowedAgentIDs == nil {
		u.AllowedAgentIDs = []string{}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}

	var out tenancy.DashboardUser
	err := utils.WithTx(ctx, p.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		if len(u.AllowedAgentIDs) > 0 {
			missing, err := missingAgentIDs(ctx, tx, u.AllowedAgentIDs)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				return apperrors.Validation("Unknown agent id: " + strings.Join(missing, ", "))
			}
		}

		q := `
INSERT INTO dashboard_users (id, username, password_hash, allowed_agent_ids, is_developer, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING ` + userColumns
		var err error
		out, err = scanUser(tx.QueryRowContext(ctx, q,
			u.ID,
			u.Username,
			u.PasswordHash,
			pq.StringArray(u.AllowedAgentIDs),
			u.IsDeveloper,
			u.CreatedAt,
		))
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrValidation):
			return tenancy.DashboardUser{}, err
		case isUniqueViolation(err):
			return tenancy.DashboardUser{}, apperrors.Conflict("Username already exists")
		default:
			return tenancy.DashboardUser{}, apperrors.Store(err, "insert user")
		}
	}
	return out, nil
}

func missingAgentIDs(ctx context.Context, tx *sql.Tx, ids []string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM agent_configs WHERE id = ANY($1)`, pq.StringArray(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[string]struct{}, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (p *Postgres) ListUsers(ctx context.Context) ([]tenancy.DashboardUser, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+userColumns+` FROM dashboard_users ORDER BY created_at DESC`)
	if err != nil {
		return nil, apperrors.Store(err, "list users")
	}
	defer rows.Close()

	out := make([]tenancy.DashboardUser, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, apperrors.Store(err, "list users")
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Store(err, "list users")
	}
	return out, nil
}

func (p *Postgres) GetUserByUsername(ctx context.Context, username string) (tenancy.DashboardUser, error) {
	q := `SELECT ` + userColumns + ` FROM dashboard_users WHERE lower(username) = lower($1)`
	u, err := scanUser(p.db.QueryRowContext(ctx, q, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tenancy.DashboardUser{}, apperrors.NotFound("User not found")
		}
		return tenancy.DashboardUser{}, apperrors.Store(err, "get user")
	}
	return u, nil
}

func scanAgent(s rowScanner) (tenancy.AgentConfig, error) {
	var (
		a   tenancy.AgentConfig
		cfg []byte
	)
	if err := s.Scan(&a.ID, &a.BrandingName, &cfg, &a.CreatedAt); err != nil {
		return tenancy.AgentConfig{}, err
	}
	if len(cfg) > 0 && string(cfg) != "null" {
		if err := json.Unmarshal(cfg, &a.EvaluationCriteriaConfig); err != nil {
			return tenancy.AgentConfig{}, fmt.Errorf("decode evaluation_criteria_config: %w", err)
		}
	}
	return a, nil
}

func scanUser(s rowScanner) (tenancy.DashboardUser, error) {
	var (
		u      tenancy.DashboardUser
		agents pq.StringArray
	)
	if err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &agents, &u.IsDeveloper, &u.CreatedAt); err != nil {
		return tenancy.DashboardUser{}, err
	}
	u.AllowedAgentIDs = []string(agents)
	if u.AllowedAgentIDs == nil {
		u.AllowedAgentIDs = []string{}
	}
	return u, nil
}
