package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Tenant invariant: an access token either carries Unrestricted or an explicit
// agent id list (possibly empty, which admits nothing).
// Refresh tokens carry only the username; scope is re-resolved on refresh.
type Claims struct {
	jwt.RegisteredClaims

	Username     string    `json:"username"`
	AgentIDs     []string  `json:"agent_ids,omitempty"`
	Unrestricted bool      `json:"unrestricted,omitempty"`
	Developer    bool      `json:"developer,omitempty"`
	TokenType    TokenType `json:"token_type"`
}

// Identity rebuilds the caller identity carried by an access token.
func (c Claims) Identity() Identity {
	s := Scope{Unrestricted: c.Unrestricted}
	if !c.Unrestricted {
		s.AgentIDs = append([]string{}, c.AgentIDs...)
	}
	return Identity{Username: c.Username, Developer: c.Developer, Scope: s}
}
