package auth

import (
	"errors"
	"fmt"
	"time"

	"calllog-dashboard/internal/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

var (
	ErrInvalidToken   = errors.New("auth: invalid token")
	ErrWrongTokenType = errors.New("auth: wrong token type")
)

// Manager issues and verifies HS256 session tokens.
type Manager struct {
	secret     []byte
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	parserOpts []jwt.ParserOption
}

func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	return &Manager{
		secret:     []byte(cfg.JWTSecret),
		issuer:     cfg.JWTIssuer,
		audience:   cfg.JWTAudience,
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
		parserOpts: opts,
	}, nil
}

type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// AccessTTL is the lifetime of issued access tokens.
func (m *Manager) AccessTTL() time.Duration { return m.accessTTL }

// IssuePair signs an access token carrying id's scope and a refresh token
// carrying only the username; scope is re-read from the store on refresh.
func (m *Manager) IssuePair(now time.Time, id Identity) (TokenPair, error) {
	access, err := m.sign(m.claims(now, TokenTypeAccess, id, m.accessTTL))
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := m.sign(m.claims(now, TokenTypeRefresh, Identity{Username: id.Username}, m.refreshTTL))
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks signature, time claims (against now), issuer, audience and token type.
func (m *Manager) Verify(tokenString string, expected TokenType, now time.Time) (Claims, error) {
	opts := append([]jwt.ParserOption{jwt.WithTimeFunc(func() time.Time { return now })}, m.parserOpts...)

	var claims Claims
	if _, err := jwt.NewParser(opts...).ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	}); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if claims.TokenType != expected {
		return Claims{}, fmt.Errorf("%w: got %q", ErrWrongTokenType, claims.TokenType)
	}
	if claims.Username == "" {
		return Claims{}, fmt.Errorf("%w: username missing", ErrInvalidToken)
	}
	return claims, nil
}

func (m *Manager) claims(now time.Time, tokenType TokenType, id Identity, ttl time.Duration) Claims {
	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   id.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
		Username:     id.Username,
		Unrestricted: id.Scope.Unrestricted,
		Developer:    id.Developer,
		TokenType:    tokenType,
	}
	if m.audience != "" {
		c.Audience = jwt.ClaimStrings{m.audience}
	}
	if !id.Scope.Unrestricted {
		c.AgentIDs = id.Scope.AgentIDs
	}
	return c
}

func (m *Manager) sign(c Claims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}
