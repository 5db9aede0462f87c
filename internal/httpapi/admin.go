package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/metrics"
	"calllog-dashboard/internal/tenancy"
	"calllog-dashboard/internal/validator"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

type createAgentRequest struct {
	AgentID                  string                             `json:"agent_id" validate:"required,max=128"`
	BrandingName             string                             `json:"branding_name" validate:"required,max=200"`
	EvaluationCriteriaConfig map[string]tenancy.CriterionConfig `json:"evaluation_criteria_config"`
}

type createUserRequest struct {
	Username        string   `json:"username" validate:"required,min=3,max=64"`
	Password        string   `json:"password" validate:"required,min=8,max=72"`
	AllowedAgentIDs []string `json:"allowed_agent_ids" validate:"dive,required"`
	IsDeveloper     bool     `json:"is_developer"`
}

// ListAgents handles GET /api/admin/agents.
func (h Handlers) ListAgents(c *gin.Context) {
	started := time.Now()
	agents, err := h.Store.ListAgents(c.Request.Context())
	metrics.ObserveStoreOperation("list_agents", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

// CreateAgent handles POST /api/admin/agents.
func (h Handlers) CreateAgent(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.Validation("Invalid JSON payload"))
		return
	}
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.BrandingName = strings.TrimSpace(req.BrandingName)
	if err := validator.Validate(req); err != nil {
		abortWithError(c, apperrors.Validation(err.Error()))
		return
	}

	criteria := req.EvaluationCriteriaConfig
	if criteria == nil {
		criteria = map[string]tenancy.CriterionConfig{}
	}

	started := time.Now()
	agent, err := h.Store.CreateAgent(c.Request.Context(), tenancy.AgentConfig{
		ID:                       req.AgentID,
		BrandingName:             req.BrandingName,
		EvaluationCriteriaConfig: criteria,
		CreatedAt:                h.now().UTC(),
	})
	metrics.ObserveStoreOperation("create_agent", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.recordAudit(c, func(a *audit.Service) error {
		return a.LogAgentCreated(c.Request.Context(), auditActor(id), agent.ID, agent.BrandingName)
	})
	logger.FromGin(c).Info("agent created", "agent_id", agent.ID, "username", id.Username)
	c.JSON(http.StatusCreated, gin.H{"message": "Agent created successfully", "agent": agent})
}

// ListUsers handles GET /api/admin/users. Password hashes are never serialized.
func (h Handlers) ListUsers(c *gin.Context) {
	started := time.Now()
	users, err := h.Store.ListUsers(c.Request.Context())
	metrics.ObserveStoreOperation("list_users", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	for i := range users {
		users[i] = publicUser(users[i])
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

// CreateUser handles POST /api/admin/users.
func (h Handlers) CreateUser(c *gin.Context) {
	id, ok := identity(c)
	if !ok {
		return
	}

	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, apperrors.Validation("Invalid JSON payload"))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.AllowedAgentIDs = dedupe(req.AllowedAgentIDs)
	if err := validator.Validate(req); err != nil {
		abortWithError(c, apperrors.Validation(err.Error()))
		return
	}
	if strings.EqualFold(req.Username, auth.LegacyUsername) {
		abortWithError(c, apperrors.Validation("Username is reserved"))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		if !errors.Is(err, apperrors.ErrValidation) {
			err = apperrors.Internal(err, "Failed to hash password")
		}
		abortWithError(c, err)
		return
	}

	started := time.Now()
	user, err := h.Store.CreateUser(c.Request.Context(), tenancy.DashboardUser{
		Username:        req.Username,
		PasswordHash:    hash,
		AllowedAgentIDs: req.AllowedAgentIDs,
		IsDeveloper:     req.IsDeveloper,
		CreatedAt:       h.now().UTC(),
	})
	metrics.ObserveStoreOperation("create_user", started, err)
	if err != nil {
		abortWithError(c, err)
		return
	}
	user = publicUser(user)

	h.recordAudit(c, func(a *audit.Service) error {
		return a.LogUserCreated(c.Request.Context(), auditActor(id), user.Username, user.IsDeveloper, len(user.AllowedAgentIDs))
	})
	logger.FromGin(c).Info("dashboard user created", "new_username", user.Username, "username", id.Username)
	c.JSON(http.StatusCreated, gin.H{"message": "User created successfully", "user": user})
}

func publicUser(u tenancy.DashboardUser) tenancy.DashboardUser {
	u.PasswordHash = ""
	if u.AllowedAgentIDs == nil {
		u.AllowedAgentIDs = []string{}
	}
	return u
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
