package utils

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PostgresPoolConfig tunes the database/sql pool. Zero values pick defaults.
type PostgresPoolConfig struct {
	MaxConns     int
	ConnLifetime time.Duration
	PingTimeout  time.Duration

	// ConnectRetry bounds how long OpenPostgres keeps retrying the first ping.
	// Zero means a single attempt.
	ConnectRetry time.Duration
	OnRetry      func(err error, after time.Duration)
}

func (c PostgresPoolConfig) withDefaults() PostgresPoolConfig {
	if c.MaxConns <= 0 {
		c.MaxConns = 20
	}
	if c.ConnLifetime <= 0 {
		c.ConnLifetime = 30 * time.Minute
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.ConnectRetry < 0 {
		c.ConnectRetry = 0
	}
	return c
}

func (c PostgresPoolConfig) apply(db *sql.DB) {
	db.SetMaxOpenConns(c.MaxConns)
	db.SetMaxIdleConns(c.MaxConns)
	db.SetConnMaxLifetime(c.ConnLifetime)
	db.SetConnMaxIdleTime(c.ConnLifetime / 6)
}

// OpenPostgres opens dsn with driverName (normally "pgx") and waits for the
// server to answer a ping. The dsn carries credentials and is never logged.
func OpenPostgres(ctx context.Context, driverName, dsn string, pool PostgresPoolConfig) (*sql.DB, error) {
	pool = pool.withDefaults()

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	pool.apply(db)

	if err := waitForPostgres(ctx, db, pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func waitForPostgres(ctx context.Context, db *sql.DB, pool PostgresPoolConfig) error {
	ping := func() error { return HealthCheck(ctx, db, pool.PingTimeout) }
	if pool.ConnectRetry == 0 {
		return ping()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = pool.ConnectRetry
	b.Reset()
	return backoff.RetryNotify(ping, backoff.WithContext(b, ctx), pool.OnRetry)
}

// HealthCheck pings db, giving up after timeout.
func HealthCheck(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping failed: %w", err)
	}
	return nil
}

// WithTx commits when fn returns nil and rolls back otherwise.
// A panic in fn rolls back and is re-raised.
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Join(errors.New("commit tx"), err)
	}
	committed = true
	return nil
}
