package hub

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type fakeConn struct {
	mu        sync.Mutex
	readLimit int64
	written   [][]byte
	closed  chan struct{}
	once    sync.Once
}

func newFakeConn() *fakeConn { return &fakeConn{closed: make(chan struct{})} }

func (f *fakeConn) SetReadLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readLimit = limit
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	<-f.closed
	return 0, nil, errors.New("closed")
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, data)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func quietHub(buffer int) *Hub {
	return New(Options{SendBuffer: buffer, Log: logger.Discard()})
}

func TestBroadcast_SkipsClosedConnections(t *testing.T) {
	h := quietHub(4)
	open := h.NewClient(newFakeConn(), "a", auth.Scope{Unrestricted: true})
	closed := h.NewClient(newFakeConn(), "b", auth.Scope{Unrestricted: true})
	h.Register(open)
	h.Register(closed)
	closed.open.Store(false)

	n := h.BroadcastNewCall(calls.Record{ID: "c1", AgentID: "agent_1", Transcript: "agent: Hi"})
	if n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if len(closed.send) != 0 {
		t.Fatalf("closed client must not receive")
	}

	var msg struct {
		Type string       `json:"type"`
		Data calls.Record `json:"data"`
	}
	if err := json.Unmarshal(<-open.send, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != TypeNewCall || msg.Data.ID != "c1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestBroadcast_RespectsViewerScope(t *testing.T) {
	h := quietHub(4)
	mine := h.NewClient(newFakeConn(), "a", auth.Scope{AgentIDs: []string{"agent_1"}})
	other := h.NewClient(newFakeConn(), "b", auth.Scope{AgentIDs: []string{"agent_2"}})
	h.Register(mine)
	h.Register(other)

	if n := h.BroadcastNewCall(calls.Record{ID: "c1", AgentID: "agent_1"}); n != 1 {
		t.Fatalf("expected 1 delivery, got %d", n)
	}
	if len(mine.send) != 1 || len(other.send) != 0 {
		t.Fatalf("scope not applied: mine=%d other=%d", len(mine.send), len(other.send))
	}
}

func TestBroadcast_DropsWhenBacklogFull(t *testing.T) {
	h := quietHub(1)
	c := h.NewClient(newFakeConn(), "a", auth.Scope{Unrestricted: true})
	h.Register(c)

	if n := h.BroadcastNewCall(calls.Record{ID: "c1"}); n != 1 {
		t.Fatalf("expected first delivery")
	}
	if n := h.BroadcastNewCall(calls.Record{ID: "c2"}); n != 0 {
		t.Fatalf("expected drop on full backlog, got %d", n)
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	h := quietHub(1)
	c := h.NewClient(newFakeConn(), "a", auth.Scope{Unrestricted: true})
	never := h.NewClient(newFakeConn(), "b", auth.Scope{Unrestricted: true})

	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)
	h.Unregister(never)

	if h.Len() != 0 {
		t.Fatalf("expected empty hub, got %d", h.Len())
	}
	if c.Open() {
		t.Fatalf("unregistered client must be closed")
	}
	if n := h.BroadcastNewCall(calls.Record{ID: "c1"}); n != 0 {
		t.Fatalf("expected no deliveries, got %d", n)
	}
}

func TestServe_WritesQueuedMessages(t *testing.T) {
	h := quietHub(4)
	conn := newFakeConn()
	c := h.NewClient(conn, "a", auth.Scope{Unrestricted: true})

	done := make(chan struct{})
	go func() {
		h.Serve(c)
		close(done)
	}()
	waitFor(t, func() bool { return h.Len() == 1 })
	conn.mu.Lock()
	limit := conn.readLimit
	conn.mu.Unlock()
	if limit != MaxInboundMessage {
		t.Fatalf("expected read limit %d, got %d", MaxInboundMessage, limit)
	}

	h.BroadcastNewCall(calls.Record{ID: "c1"})
	waitFor(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		return len(conn.written) == 1
	})

	_ = conn.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Serve did not return after transport close")
	}
	if h.Len() != 0 {
		t.Fatalf("expected viewer removed on close")
	}
}

func TestServeWS_PingPongAndPush(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := quietHub(4)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		id := auth.Identity{Username: "alice", Scope: auth.Scope{AgentIDs: []string{"agent_1"}}}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}, h.ServeWS)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))

	if err := ws.WriteJSON(Message{Type: TypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	var pong Message
	if err := ws.ReadJSON(&pong); err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if pong.Type != TypePong {
		t.Fatalf("expected pong, got %q", pong.Type)
	}

	waitFor(t, func() bool { return h.Len() == 1 })
	h.BroadcastNewCall(calls.Record{ID: "other", AgentID: "agent_2"})
	h.BroadcastNewCall(calls.Record{ID: "c1", AgentID: "agent_1"})

	var push struct {
		Type string       `json:"type"`
		Data calls.Record `json:"data"`
	}
	if err := ws.ReadJSON(&push); err != nil {
		t.Fatalf("read push: %v", err)
	}
	if push.Type != TypeNewCall || push.Data.ID != "c1" {
		t.Fatalf("unexpected push: %+v", push)
	}
}

func TestServeWS_OversizedFrameDisconnects(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := quietHub(4)

	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		id := auth.Identity{Username: "alice", Scope: auth.Scope{Unrestricted: true}}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}, h.ServeWS)

	srv := httptest.NewServer(r)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.Close()
	waitFor(t, func() bool { return h.Len() == 1 })

	big := `{"type":"ping","pad":"` + strings.Repeat("x", 2*MaxInboundMessage) + `"}`
	if err := ws.WriteMessage(websocket.TextMessage, []byte(big)); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return h.Len() == 0 })
}

func TestServeWS_RequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := quietHub(4)

	r := gin.New()
	r.GET("/ws", h.ServeWS)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestCheckOrigin(t *testing.T) {
	h := New(Options{AllowedOrigins: []string{"https://dash.example.com"}})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)

	req.Header.Set("Origin", "https://dash.example.com")
	if !h.checkOrigin(req) {
		t.Fatalf("expected allowed origin")
	}
	req.Header.Set("Origin", "https://evil.example.com")
	if h.checkOrigin(req) {
		t.Fatalf("expected rejected origin")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
