package main

import (
	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/config"
	"calllog-dashboard/internal/httpapi"
	"calllog-dashboard/internal/hub"
	"calllog-dashboard/internal/metrics"
	"calllog-dashboard/internal/rbac"
	"calllog-dashboard/internal/reporting"
	"calllog-dashboard/internal/store"
	"calllog-dashboard/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

type routeDeps struct {
	cfg      config.Config
	auth     *auth.Manager
	gate     *auth.Gate
	store    store.Repository
	reports  *reporting.Service
	audit    *audit.Service
	hub      *hub.Hub
	redis    *redis.Client
	throttle auth.Throttle
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, d routeDeps) {
	r.Use(httpapi.CORS(d.cfg.App.CORSAllowedOrigins))

	h := httpapi.Handlers{
		Auth:    d.auth,
		Gate:    d.gate,
		Store:   d.store,
		Reports: d.reports,
		Audit:   d.audit,
		Redis:   d.redis,
	}

	// public
	r.GET("/health", h.Health)
	r.GET("/metrics", metrics.Handler())

	// Platform webhooks (public, HMAC-signed).
	{
		wh := webhook.Handler{
			Store: d.store,
			Hub:   d.hub,
			Signature: webhook.SignaturePolicy{
				Secret:  d.cfg.Webhook.Secret,
				Require: d.cfg.Webhook.RequireSignature,
			},
			Normalizer: webhook.Normalizer{NewID: calls.NewID},
		}
		r.GET("/webhook/elevenlabs", wh.Ping)
		r.POST("/webhook/elevenlabs", wh.Ingest)
		r.POST("/webhook/elevenlabs-initiation-data", wh.Initiation)
	}

	// Push channel. Browsers cannot set headers on upgrade, so ?token= is accepted.
	r.GET("/ws", auth.RequireAccessTokenOrQuery(d.auth), d.hub.ServeWS)

	api := r.Group("/api")
	api.POST("/login", auth.LimitLogins(d.throttle), h.Login)
	api.POST("/auth/refresh", h.Refresh)

	// protected API group
	protected := api.Group("")
	protected.Use(auth.RequireAccessToken(d.auth))
	{
		protected.GET("/calls", rbac.ResolveScope(), h.ListCalls)
		protected.GET("/calls/:id", h.GetCall)
		protected.PATCH("/calls/:id", h.UpdateCallFlag)
		protected.GET("/stats", rbac.ResolveScope(), h.Stats)

		// ADMIN routes
		admin := protected.Group("/admin")
		admin.Use(rbac.RequireDeveloper())
		{
			admin.GET("/agents", h.ListAgents)
			admin.POST("/agents", h.CreateAgent)
			admin.GET("/users", h.ListUsers)
			admin.POST("/users", h.CreateUser)
		}
	}
}
