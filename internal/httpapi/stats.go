package httpapi

import (
	"net/http"

	"calllog-dashboard/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Stats handles GET /api/stats. Requires rbac.ResolveScope in the chain.
func (h Handlers) Stats(c *gin.Context) {
	out, err := h.Reports.Stats(c.Request.Context(), rbac.AgentFilter(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}
