package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestMiddleware_InjectsRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	l := NewWriter(&buf, "production")

	r := gin.New()
	r.Use(Middleware(l))
	r.GET("/x", func(c *gin.Context) {
		From(c.Request.Context()).Info("inside")
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(headerRequestID, "rid-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Header().Get(headerRequestID) != "rid-1" {
		t.Fatalf("request id not echoed")
	}
	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0]["msg"] != "inside" || lines[0]["request_id"] != "rid-1" || lines[0]["service"] != serviceName {
		t.Fatalf("unexpected handler line: %v", lines[0])
	}
	if lines[1]["level"] != "WARN" || lines[1]["status"] != float64(http.StatusTeapot) {
		t.Fatalf("unexpected summary line: %v", lines[1])
	}
}

func TestMiddleware_SkipsProbePaths(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer

	r := gin.New()
	r.Use(Middleware(NewWriter(&buf, "production"), MiddlewareOptions{SkipPaths: []string{"/health"}}))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("expected no log output, got %s", buf.String())
	}
}

func TestNew_DebugOnlyInDevEnvs(t *testing.T) {
	var buf bytes.Buffer
	NewWriter(&buf, "production").Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be off in production")
	}
	NewWriter(&buf, "local").Debug("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("debug should be on locally")
	}
}
