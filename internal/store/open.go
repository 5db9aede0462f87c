package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"calllog-dashboard/internal/config"
	"calllog-dashboard/pkg/utils"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open returns the Repository selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log *slog.Logger) (Repository, error) {
	switch cfg.Driver {
	case DriverPostgres:
		db, err := utils.OpenPostgres(ctx, "pgx", cfg.DatabaseURL, utils.PostgresPoolConfig{
			ConnectRetry: 30 * time.Second,
			OnRetry: func(err error, after time.Duration) {
				log.Warn("postgres not ready, retrying", "err", err, "after", after)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return NewPostgres(db), nil
	case DriverSupabase:
		return NewSupabase(SupabaseConfig{URL: cfg.SupabaseURL, APIKey: cfg.SupabaseKey})
	case DriverMemory:
		log.Warn("using in-memory store; records are lost on restart")
		return NewMemory(), nil
	default:
		return nil, errUnknownDriver(cfg.Driver)
	}
}
