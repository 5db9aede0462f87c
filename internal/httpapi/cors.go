package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS admits browser requests from the dashboard origins. "*" admits any origin.
// Requests carrying a foreign Origin are refused with 403.
func CORS(allowed []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-Id"},
		ExposeHeaders: []string{"X-Request-Id"},
		MaxAge:        10 * time.Minute,
	}

	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "*":
			cfg.AllowAllOrigins = true
		case o != "":
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if cfg.AllowAllOrigins {
		cfg.AllowOrigins = nil
	}
	if !cfg.AllowAllOrigins && len(cfg.AllowOrigins) == 0 {
		// an empty list means same-origin only
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(cfg)
}
