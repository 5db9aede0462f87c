package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/metrics"
	"calllog-dashboard/internal/tenancy"

	"golang.org/x/crypto/bcrypt"
)

// LegacyUsername identifies sessions opened with the single dashboard password.
const LegacyUsername = "dashboard"

// Login modes, used as metric labels.
const (
	ModeUsername = "username"
	ModeLegacy   = "legacy"
	ModeScan     = "scan"
)

var errInvalidCredentials = apperrors.Unauthorized("Invalid credentials")

// UserStore is the slice of the record store the gate reads.
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (tenancy.DashboardUser, error)
	ListUsers(ctx context.Context) ([]tenancy.DashboardUser, error)
	ListAgents(ctx context.Context) ([]tenancy.AgentConfig, error)
	GetAgentsByIDs(ctx context.Context, ids []string) ([]tenancy.AgentConfig, error)
}

type GateConfig struct {
	// DashboardPassword enables password-only legacy login when non-empty.
	DashboardPassword string
	// PasswordScan checks a password-only login against every registered user.
	PasswordScan bool
}

// Session is the result of a successful authentication.
type Session struct {
	Identity Identity
	// Agents holds branding metadata for every agent in scope.
	Agents []tenancy.AgentConfig
}

// Gate is the Access Control Gate. Password hashes never leave it.
type Gate struct {
	users UserStore
	cfg   GateConfig
}

func NewGate(users UserStore, cfg GateConfig) *Gate {
	return &Gate{users: users, cfg: cfg}
}

// Authenticate resolves credentials to a session.
//
// With a username: one lookup and one bcrypt compare.
// Without: the legacy dashboard password first, then (if enabled) a scan of all users.
func (g *Gate) Authenticate(ctx context.Context, username, password string) (Session, error) {
	if password == "" {
		return Session{}, apperrors.Validation("Password is required")
	}

	if username != "" {
		s, err := g.authenticateUser(ctx, username, password)
		metrics.IncLogin(ModeUsername, outcome(err))
		return s, err
	}

	if g.cfg.DashboardPassword != "" &&
		subtle.ConstantTimeCompare([]byte(password), []byte(g.cfg.DashboardPassword)) == 1 {
		s, err := g.legacySession(ctx)
		metrics.IncLogin(ModeLegacy, outcome(err))
		return s, err
	}

	if !g.cfg.PasswordScan {
		metrics.IncLogin(ModeLegacy, outcome(errInvalidCredentials))
		return Session{}, errInvalidCredentials
	}
	s, err := g.scanUsers(ctx, password)
	metrics.IncLogin(ModeScan, outcome(err))
	return s, err
}

// Resolve rebuilds a session for an already authenticated username (token refresh).
func (g *Gate) Resolve(ctx context.Context, username string) (Session, error) {
	if username == LegacyUsername && g.cfg.DashboardPassword != "" {
		return g.legacySession(ctx)
	}
	u, err := g.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return Session{}, apperrors.Unauthorized("Invalid token")
		}
		return Session{}, err
	}
	return g.userSession(ctx, u)
}

func (g *Gate) authenticateUser(ctx context.Context, username, password string) (Session, error) {
	u, err := g.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// keep timing close to the found-user path
			_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(password))
			return Session{}, errInvalidCredentials
		}
		return Session{}, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return Session{}, errInvalidCredentials
	}
	return g.userSession(ctx, u)
}

// scanUsers compares password against every stored hash until one matches.
// O(n) bcrypt compares; acceptable only for small user tables.
func (g *Gate) scanUsers(ctx context.Context, password string) (Session, error) {
	users, err := g.users.ListUsers(ctx)
	if err != nil {
		return Session{}, err
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return Session{}, apperrors.Internal(err, "login cancelled")
		}
		if CheckPassword(u.PasswordHash, password) {
			return g.userSession(ctx, u)
		}
	}
	return Session{}, errInvalidCredentials
}

func (g *Gate) legacySession(ctx context.Context) (Session, error) {
	agents, err := g.users.ListAgents(ctx)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Identity: Identity{
			Username:  LegacyUsername,
			Developer: true,
			Scope:     Scope{Unrestricted: true},
		},
		Agents: agents,
	}, nil
}

func (g *Gate) userSession(ctx context.Context, u tenancy.DashboardUser) (Session, error) {
	id := Identity{Username: u.Username, Developer: u.IsDeveloper}

	var (
		agents []tenancy.AgentConfig
		err    error
	)
	if u.IsDeveloper {
		id.Scope = Scope{Unrestricted: true}
		agents, err = g.users.ListAgents(ctx)
	} else {
		id.Scope = Scope{AgentIDs: append([]string{}, u.AllowedAgentIDs...)}
		agents, err = g.users.GetAgentsByIDs(ctx, u.AllowedAgentIDs)
	}
	if err != nil {
		return Session{}, err
	}
	return Session{Identity: id, Agents: agents}, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, apperrors.ErrUnauthorized):
		return "rejected"
	default:
		return "error"
	}
}

// MaxPasswordBytes is bcrypt's input limit. It counts bytes, not characters.
const MaxPasswordBytes = 72

var errPasswordTooLong = apperrors.Validation(fmt.Sprintf("password must not exceed %d bytes", MaxPasswordBytes))

// HashPassword returns a bcrypt hash suitable for DashboardUser.PasswordHash.
// Passwords over MaxPasswordBytes are a validation error.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", errPasswordTooLong
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)
	})
	return dummy
}
