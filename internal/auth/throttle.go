package auth

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"calllog-dashboard/pkg/logger"
	"calllog-dashboard/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Throttle counts attempts per key within a fixed window.
type Throttle interface {
	Allow(ctx context.Context, key string) (Verdict, error)
}

// Verdict is one throttle decision. RetryAfter is set only when the attempt is refused.
type Verdict struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RedisThrottle shares attempt counters across API replicas.
type RedisThrottle struct {
	rdb    *redis.Client
	limit  int
	window time.Duration
}

func NewRedisThrottle(rdb *redis.Client, limit int, window time.Duration) *RedisThrottle {
	return &RedisThrottle{rdb: rdb, limit: limit, window: window}
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (Verdict, error) {
	r, err := utils.CountFixedWindow(ctx, t.rdb, "calllog:throttle:"+key, t.limit, t.window)
	if err != nil {
		return Verdict{}, err
	}
	return Verdict{Allowed: r.Allowed, RetryAfter: r.RetryAfter}, nil
}

// MemoryThrottle is the single-process fallback when Redis is not configured.
type MemoryThrottle struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	now     func() time.Time
	windows map[string]fixedWindow
}

type fixedWindow struct {
	start time.Time
	count int
}

func NewMemoryThrottle(limit int, window time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		limit:   limit,
		window:  window,
		now:     time.Now,
		windows: make(map[string]fixedWindow),
	}
}

func (t *MemoryThrottle) Allow(_ context.Context, key string) (Verdict, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	w, ok := t.windows[key]
	if !ok || now.Sub(w.start) >= t.window {
		w = fixedWindow{start: now}
	}
	w.count++
	t.windows[key] = w

	if len(t.windows) > 10000 {
		t.sweepLocked(now)
	}
	if w.count <= t.limit {
		return Verdict{Allowed: true}, nil
	}
	return Verdict{RetryAfter: w.start.Add(t.window).Sub(now)}, nil
}

func (t *MemoryThrottle) sweepLocked(now time.Time) {
	for k, w := range t.windows {
		if now.Sub(w.start) >= t.window {
			delete(t.windows, k)
		}
	}
}

// LimitLogins rejects a client IP with 429 once it exceeds the throttle.
// Throttle backend failures are logged and the attempt is let through.
func LimitLogins(t Throttle) gin.HandlerFunc {
	return func(c *gin.Context) {
		if t == nil {
			c.Next()
			return
		}
		v, err := t.Allow(c.Request.Context(), "login:"+c.ClientIP())
		if err != nil {
			logger.FromGin(c).Warn("login throttle unavailable", "err", err)
			c.Next()
			return
		}
		if !v.Allowed {
			if v.RetryAfter > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(v.RetryAfter.Seconds()))))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Too many login attempts"})
			return
		}
		c.Next()
	}
}
