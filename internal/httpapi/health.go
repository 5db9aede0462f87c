package httpapi

import (
	"context"
	"net/http"
	"time"

	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

const healthTimeout = 3 * time.Second

// Health handles GET /health. The store is required; Redis is reported but never fails the check.
func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	body := gin.H{
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"database":  h.Store.Name(),
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			logger.FromGin(c).Warn("redis ping failed", "err", err)
			body["redis"] = "unavailable"
		} else {
			body["redis"] = "ok"
		}
	}

	if err := h.Store.Ping(ctx); err != nil {
		logger.FromGin(c).Error("store ping failed", "err", err)
		body["status"] = "unhealthy"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "healthy"
	c.JSON(http.StatusOK, body)
}
