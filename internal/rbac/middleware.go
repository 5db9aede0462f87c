package rbac

import (
	"net/http"
	"strings"

	"calllog-dashboard/internal/auth"

	"github.com/gin-gonic/gin"
)

const (
	agentIDsQueryParam = "agent_ids"
	ctxAgentFilter     = "rbac.agent_filter"
)

// RequireDeveloper allows access only to developer identities.
// Use after auth.RequireAccessToken in the chain.
func RequireDeveloper() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		if !IsDeveloper(id) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Developer access required"})
			return
		}
		c.Next()
	}
}

// ResolveScope narrows the optional comma-separated agent_ids query parameter to
// the caller's scope and stores the resulting store filter for AgentFilter.
//
// Rules:
// - agent ids outside the caller's scope are dropped, never an error.
// - the stored filter is nil only for an unrestricted caller with no request.
func ResolveScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := auth.IdentityFrom(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}
		c.Set(ctxAgentFilter, id.Scope.Narrow(ParseAgentIDs(c.Query(agentIDsQueryParam))))
		c.Next()
	}
}

// AgentFilter returns the filter stored by ResolveScope.
// Without ResolveScope in the chain it returns an empty filter that matches nothing.
func AgentFilter(c *gin.Context) []string {
	if v, ok := c.Get(ctxAgentFilter); ok {
		if ids, ok := v.([]string); ok {
			return ids
		}
	}
	return []string{}
}

// ParseAgentIDs splits a comma-separated list, dropping blanks.
func ParseAgentIDs(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
