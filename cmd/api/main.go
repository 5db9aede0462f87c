package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/config"
	"calllog-dashboard/internal/hub"
	"calllog-dashboard/internal/reporting"
	"calllog-dashboard/internal/secrets"
	"calllog-dashboard/internal/store"
	"calllog-dashboard/pkg/logger"
	"calllog-dashboard/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx)
	if err != nil {
		slog.Error("config invalid", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if err := run(ctx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

// loadConfig parses the environment, overlays SSM secrets when configured, then validates.
func loadConfig(ctx context.Context) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, err
	}
	if cfg.SSM.Enabled() {
		ps, err := secrets.NewParamStoreFromEnv(ctx)
		if err != nil {
			return config.Config{}, fmt.Errorf("ssm client: %w", err)
		}
		if err := secrets.Overlay(ctx, ps, &cfg); err != nil {
			return config.Config{}, fmt.Errorf("ssm overlay: %w", err)
		}
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("auth: %w", err)
	}

	repo, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("store %s: %w", cfg.Store.Driver, err)
	}
	defer repo.Close()

	var rdb *redis.Client
	throttle := auth.Throttle(auth.NewMemoryThrottle(cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow))
	if cfg.Redis.Addr != "" {
		rdb, err = utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rdb.Close()
		throttle = auth.NewRedisThrottle(rdb, cfg.Auth.LoginMaxAttempts, cfg.Auth.LoginWindow)
	}

	fanout := hub.New(hub.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		WriteTimeout:   cfg.WS.WriteTimeout,
		AllowedOrigins: cfg.App.CORSAllowedOrigins,
		Log:            log.With("component", "hub"),
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log, logger.MiddlewareOptions{SkipPaths: []string{"/health", "/metrics"}}))
	registerRoutes(r, routeDeps{
		cfg:      cfg,
		auth:     tokens,
		gate:     auth.NewGate(repo, auth.GateConfig{DashboardPassword: cfg.Auth.DashboardPassword, PasswordScan: cfg.Auth.PasswordScan}),
		store:    repo,
		reports:  reporting.NewService(repo, cfg.StatsLocation()),
		audit:    audit.NewService(audit.RepositoryFunc(repo.AppendAuditEvent)),
		hub:      fanout,
		redis:    rdb,
		throttle: throttle,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", srv.Addr, "store", repo.Name())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		fanout.Close()
		return err
	case <-ctx.Done():
	}
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	fanout.Close()
	return srv.Shutdown(shutdownCtx)
}
