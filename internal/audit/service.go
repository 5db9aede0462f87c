package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// RepositoryFunc adapts a plain function to Repository.
type RepositoryFunc func(ctx context.Context, e Event) error

func (f RepositoryFunc) Append(ctx context.Context, e Event) error { return f(ctx, e) }

// Service logs internal audit information.
//
// Audit is internal-only and best-effort: callers log failures and carry on.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" || e.Actor == "" {
		return ErrInvalidEvent
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	o := OriginFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = o.IP
	}
	if e.RequestID == "" {
		e.RequestID = o.RequestID
	}
	return s.repo.Append(ctx, e)
}

// Actor identifies who performed an audited action.
type Actor struct {
	Username  string
	Developer bool
}

func (a Actor) role() string {
	if a.Developer {
		return RoleDeveloper
	}
	return RoleViewer
}

// LogAgentCreated records creation of a tenant agent.
func (s *Service) LogAgentCreated(ctx context.Context, actor Actor, agentID, brandingName string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeAgentCreated,
		Actor:     actor.Username,
		ActorRole: actor.role(),
		AgentID:   agentID,
		Message:   fmt.Sprintf("agent %q created", brandingName),
	})
}

// LogUserCreated records creation of a dashboard login. Credentials are never recorded.
func (s *Service) LogUserCreated(ctx context.Context, actor Actor, username string, developer bool, allowedAgents int) error {
	return s.Append(ctx, Event{
		Type:      EventTypeUserCreated,
		Actor:     actor.Username,
		ActorRole: actor.role(),
		Username:  username,
		Message:   "dashboard user created",
		Metadata:  fmt.Sprintf(`{"is_developer":%t,"allowed_agent_count":%d}`, developer, allowedAgents),
	})
}

// LogFlagUpdated records a reviewer flag change on a call record.
func (s *Service) LogFlagUpdated(ctx context.Context, actor Actor, callID, agentID string, flagged bool) error {
	return s.Append(ctx, Event{
		Type:      EventTypeFlagUpdated,
		Actor:     actor.Username,
		ActorRole: actor.role(),
		CallID:    callID,
		AgentID:   agentID,
		Message:   "review flag updated",
		Metadata:  fmt.Sprintf(`{"is_flagged_for_review":%t}`, flagged),
	})
}
