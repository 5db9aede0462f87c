package httpapi

import (
	"net/http"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/tenancy"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionAgent struct {
	ID                       string                             `json:"id"`
	BrandingName             string                             `json:"branding_name"`
	EvaluationCriteriaConfig map[string]tenancy.CriterionConfig `json:"evaluation_criteria_config"`
}

type sessionUser struct {
	Username        string         `json:"username"`
	IsDeveloper     bool           `json:"is_developer"`
	AllowedAgentIDs []string       `json:"allowed_agent_ids"`
	Agents          []sessionAgent `json:"agents"`
}

type sessionResponse struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message"`
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	User         sessionUser `json:"user"`
}

// Login handles POST /api/login.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Gate == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.Validation("Invalid JSON payload"))
		return
	}

	session, err := h.Gate.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		logger.FromGin(c).Info("login rejected", "username", req.Username, "err", err)
		abortWithError(c, err)
		return
	}
	h.writeSession(c, session, "Login successful")
}

// Refresh handles POST /api/auth/refresh. Scope is re-resolved from the store.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Gate == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		abortWithError(c, apperrors.Validation("refresh_token is required"))
		return
	}

	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, h.now())
	if err != nil {
		abortWithError(c, apperrors.Unauthorized("Invalid token"))
		return
	}
	session, err := h.Gate.Resolve(c.Request.Context(), claims.Username)
	if err != nil {
		abortWithError(c, err)
		return
	}
	h.writeSession(c, session, "Token refreshed")
}

func (h Handlers) writeSession(c *gin.Context, s auth.Session, message string) {
	pair, err := h.Auth.IssuePair(h.now(), s.Identity)
	if err != nil {
		abortWithError(c, apperrors.Internal(err, "token issuance failed"))
		return
	}

	agents := make([]sessionAgent, 0, len(s.Agents))
	allowed := make([]string, 0, len(s.Agents))
	for _, a := range s.Agents {
		agents = append(agents, sessionAgent{
			ID:                       a.ID,
			BrandingName:             a.BrandingName,
			EvaluationCriteriaConfig: a.EvaluationCriteriaConfig,
		})
		allowed = append(allowed, a.ID)
	}
	if !s.Identity.Scope.Unrestricted {
		allowed = append([]string{}, s.Identity.Scope.AgentIDs...)
	}

	logger.FromGin(c).Info("session issued", "username", s.Identity.Username, "developer", s.Identity.Developer)
	c.JSON(http.StatusOK, sessionResponse{
		Success:      true,
		Message:      message,
		Token:        pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(h.Auth.AccessTTL().Seconds()),
		User: sessionUser{
			Username:        s.Identity.Username,
			IsDeveloper:     s.Identity.Developer,
			AllowedAgentIDs: allowed,
			Agents:          agents,
		},
	})
}
