package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig is the subset of go-redis options the API tunes.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Timeout applies to dial, read and write.
	Timeout     time.Duration
	PoolSize    int
	PingTimeout time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = 2 * time.Second
	}
	return c
}

// OpenRedis builds a client and fails fast when the first PING does not succeed.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	cfg = cfg.withDefaults()
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
		PoolSize:     cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// WindowResult is the outcome of one fixed-window count.
type WindowResult struct {
	Allowed bool
	// RetryAfter is the time left in the current window.
	RetryAfter time.Duration
}

// fixedWindowScript increments KEYS[1], starting a window of ARGV[2] ms on first use,
// and returns {count, pttl}. A key found without a TTL gets one.
var fixedWindowScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
local ttl = redis.call('PTTL', KEYS[1])
if n == 1 or ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// CountFixedWindow records one hit on key and reports whether the window still admits it.
func CountFixedWindow(ctx context.Context, rdb *redis.Client, key string, limit int, window time.Duration) (WindowResult, error) {
	if err := checkWindowArgs(rdb, key, limit, window); err != nil {
		return WindowResult{}, err
	}

	vals, err := fixedWindowScript.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return WindowResult{}, err
	}
	if len(vals) != 2 {
		return WindowResult{}, fmt.Errorf("fixed window script returned %d values", len(vals))
	}
	return windowResult(vals[0], vals[1], limit), nil
}

func windowResult(count, pttl int64, limit int) WindowResult {
	r := WindowResult{Allowed: count <= int64(limit)}
	if !r.Allowed && pttl > 0 {
		r.RetryAfter = time.Duration(pttl) * time.Millisecond
	}
	return r
}

func checkWindowArgs(rdb *redis.Client, key string, limit int, window time.Duration) error {
	switch {
	case rdb == nil:
		return errors.New("redis client is nil")
	case key == "":
		return errors.New("key is required")
	case limit <= 0:
		return errors.New("limit must be > 0")
	case window <= 0:
		return errors.New("window must be > 0")
	}
	return nil
}
