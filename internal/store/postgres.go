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
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres implements Repository over database/sql (driver "pgx").
//
// Expected tables are described in schema.sql.
type Postgres struct {
	db          *sql.DB
	pingTimeout time.Duration
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, pingTimeout: 3 * time.Second}
}

func (p *Postgres) Name() string { return DriverPostgres }

func (p *Postgres) Ping(ctx context.Context) error {
	return apperrors.Store(utils.HealthCheck(ctx, p.db, p.pingTimeout), "ping")
}

func (p *Postgres) Close() error { return p.db.Close() }

const callColumns = `id, agent_id, caller_number, transcript, "timestamp", duration, processed_at, evaluation_results, is_flagged_for_review`

func (p *Postgres) InsertCall(ctx context.Context, r calls.Record) (calls.Record, error) {
	const q = `
INSERT INTO calls (
  id, agent_id, caller_number, transcript, "timestamp", duration, processed_at, evaluation_results, is_flagged_for_review
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
RETURNING ` + callColumns

	eval, err := marshalNullableJSON(r.EvaluationResults)
	if err != nil {
		return calls.Record{}, apperrors.Internal(err, "encode evaluation results")
	}
	row := p.db.QueryRowContext(ctx, q,
		r.ID,
		r.AgentID,
		r.CallerNumber,
		r.Transcript,
		r.Timestamp,
		nullableInt(r.Duration),
		r.ProcessedAt,
		eval,
		r.IsFlaggedForReview,
	)
	out, err := scanCall(row)
	if err != nil {
		if isUniqueViolation(err) {
			return calls.Record{}, apperrors.Conflict("Call already exists")
		}
		return calls.Record{}, apperrors.Store(err, "insert call")
	}
	return out, nil
}

func (p *Postgres) ListCalls(ctx context.Context, f calls.Filter, pg calls.Page) ([]calls.Record, int, error) {
	pg = pg.Normalize()
	if scopeIsEmpty(f.AgentIDs) {
		return []calls.Record{}, 0, nil
	}

	where, args := buildCallsWhere(f)

	var total int
	countQ := `SELECT COUNT(*) FROM calls` + where
	if err := p.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, apperrors.Store(err, "count calls")
	}

	listQ := fmt.Sprintf(`SELECT %s FROM calls%s ORDER BY processed_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		callColumns, where, len(args)+1, len(args)+2)
	rows, err := p.db.QueryContext(ctx, listQ, append(args, pg.Limit, pg.Offset)...)
	if err != nil {
		return nil, 0, apperrors.Store(err, "list calls")
	}
	defer rows.Close()

	out, err := scanCalls(rows)
	if err != nil {
		return nil, 0, apperrors.Store(err, "list calls")
	}
	return out, total, nil
}

func (p *Postgres) GetCall(ctx context.Context, id string) (calls.Record, error) {
	q := `SELECT ` + callColumns + ` FROM calls WHERE id = $1`
	r, err := scanCall(p.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Record{}, apperrors.NotFound("Call not found")
		}
		return calls.Record{}, apperrors.Store(err, "get call")
	}
	return r, nil
}

func (p *Postgres) UpdateCallFlag(ctx context.Context, id string, flagged bool) (calls.Record, error) {
	q := `UPDATE calls SET is_flagged_for_review = $2 WHERE id = $1 RETURNING ` + callColumns
	r, err := scanCall(p.db.QueryRowContext(ctx, q, id, flagged))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Record{}, apperrors.NotFound("Call not found")
		}
		return calls.Record{}, apperrors.Store(err, "update call flag")
	}
	return r, nil
}

func (p *Postgres) ListCallsForStats(ctx context.Context, agentIDs []string) ([]calls.Record, error) {
	if scopeIsEmpty(agentIDs) {
		return []calls.Record{}, nil
	}
	where, args := buildCallsWhere(calls.Filter{AgentIDs: agentIDs})
	q := `SELECT ` + callColumns + ` FROM calls` + where + ` ORDER BY processed_at DESC`

	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, apperrors.Store(err, "list calls for stats")
	}
	defer rows.Close()

	out, err := scanCalls(rows)
	if err != nil {
		return nil, apperrors.Store(err, "list calls for stats")
	}
	return out, nil
}

func (p *Postgres) AppendAuditEvent(ctx context.Context, e audit.Event) error {
	const q = `
INSERT INTO audit_events (
  id, type, actor, actor_role, ip_address, request_id, agent_id, call_id, username, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
`
	var metadata any
	if e.Metadata != "" {
		metadata = e.Metadata
	}
	_, err := p.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		e.Actor,
		e.ActorRole,
		e.IPAddress,
		e.RequestID,
		e.AgentID,
		e.CallID,
		e.Username,
		e.Message,
		metadata,
		e.CreatedAt,
	)
	return apperrors.Store(err, "append audit event")
}

// buildCallsWhere renders the filter as a WHERE clause with positional args.
func buildCallsWhere(f calls.Filter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		ph := next(likePattern(f.Search))
		conds = append(conds, fmt.Sprintf("(transcript ILIKE %s OR caller_number ILIKE %s)", ph, ph))
	}
	if f.Caller != "" {
		conds = append(conds, "caller_number ILIKE "+next(likePattern(f.Caller)))
	}
	if f.ConversationID != "" {
		conds = append(conds, "id ILIKE "+next(likePattern(f.ConversationID)))
	}
	if f.From != nil {
		conds = append(conds, `"timestamp" >= `+next(*f.From))
	}
	if f.To != nil {
		conds = append(conds, `"timestamp" <= `+next(*f.To))
	}
	if f.AgentIDs != nil {
		conds = append(conds, "agent_id = ANY("+next(pq.StringArray(f.AgentIDs))+")")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps v for a substring ILIKE match, escaping wildcards.
func likePattern(v string) string {
	return "%" + likeEscaper.Replace(v) + "%"
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCall(s rowScanner) (calls.Record, error) {
	var (
		r        calls.Record
		duration sql.NullInt64
		eval     []byte
	)
	if err := s.Scan(
		&r.ID,
		&r.AgentID,
		&r.CallerNumber,
		&r.Transcript,
		&r.Timestamp,
		&duration,
		&r.ProcessedAt,
		&eval,
		&r.IsFlaggedForReview,
	); err != nil {
		return calls.Record{}, err
	}
	if duration.Valid {
		d := int(duration.Int64)
		r.Duration = &d
	}
	if len(eval) > 0 && string(eval) != "null" {
		if err := json.Unmarshal(eval, &r.EvaluationResults); err != nil {
			return calls.Record{}, fmt.Errorf("decode evaluation_results: %w", err)
		}
	}
	return r, nil
}

func scanCalls(rows *sql.Rows) ([]calls.Record, error) {
	out := make([]calls.Record, 0)
	for rows.Next() {
		r, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

// marshalNullableJSON returns nil for empty maps so the column stays NULL.
func marshalNullableJSON[M ~map[K]V, K comparable, V any](m M) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
