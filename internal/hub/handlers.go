package hub

import (
	"net/http"

	"calllog-dashboard/internal/auth"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
)

// ServeWS handles GET /ws. It requires auth.RequireAccessTokenOrQuery earlier in the chain.
func (h *Hub) ServeWS(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		logger.FromGin(c).Warn("websocket upgrade failed", "err", err)
		return
	}

	h.Serve(h.NewClient(conn, id.Username, id.Scope))
}
