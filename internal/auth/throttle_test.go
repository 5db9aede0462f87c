package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestMemoryThrottle_FixedWindow(t *testing.T) {
	th := NewMemoryThrottle(2, time.Minute)
	now := time.Unix(1700000000, 0)
	th.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if v, _ := th.Allow(ctx, "k"); !v.Allowed {
			t.Fatalf("attempt %d should pass", i+1)
		}
	}
	now = now.Add(15 * time.Second)
	if v, _ := th.Allow(ctx, "k"); v.Allowed || v.RetryAfter != 45*time.Second {
		t.Fatalf("third attempt should be rejected with 45s left, got %+v", v)
	}
	if v, _ := th.Allow(ctx, "other"); !v.Allowed {
		t.Fatalf("keys are independent")
	}

	now = now.Add(time.Minute)
	if v, _ := th.Allow(ctx, "k"); !v.Allowed {
		t.Fatalf("new window should pass")
	}
}

func TestLimitLogins(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/login", LimitLogins(NewMemoryThrottle(1, time.Minute)), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	var last *httptest.ResponseRecorder
	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		last = httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		r.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected codes: %v", codes)
	}
	if last.Header().Get("Retry-After") != "60" {
		t.Fatalf("expected Retry-After 60, got %q", last.Header().Get("Retry-After"))
	}
}

type brokenThrottle struct{}

func (brokenThrottle) Allow(context.Context, string) (Verdict, error) {
	return Verdict{}, errors.New("redis down")
}

func TestLimitLogins_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.POST("/login", LimitLogins(brokenThrottle{}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/login", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected attempt let through, got %d", w.Code)
	}
}
