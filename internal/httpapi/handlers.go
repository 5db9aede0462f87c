package httpapi

import (
	"time"

	"calllog-dashboard/internal/apperrors"
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/reporting"
	"calllog-dashboard/internal/store"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth    *auth.Manager
	Gate    *auth.Gate
	Store   store.Repository
	Reports *reporting.Service
	Audit   *audit.Service

	// Redis is optional; health reports it when set.
	Redis *redis.Client

	Now func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// abortWithError writes {"error": msg} with the status mapped from err.
// Store and internal failures are logged with their cause and rendered generically.
func abortWithError(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		logger.FromGin(c).Error("request failed", "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": apperrors.Message(err)})
}

func identity(c *gin.Context) (auth.Identity, bool) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		abortWithError(c, apperrors.Unauthorized("Access token required"))
		return auth.Identity{}, false
	}
	return id, true
}

func auditActor(id auth.Identity) audit.Actor {
	return audit.Actor{Username: id.Username, Developer: id.Developer}
}

// recordAudit appends best-effort; failures are logged, never returned.
func (h Handlers) recordAudit(c *gin.Context, fn func(*audit.Service) error) {
	if h.Audit == nil {
		return
	}
	if err := fn(h.Audit); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}
