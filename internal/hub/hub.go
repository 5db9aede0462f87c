package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/metrics"

	"github.com/gorilla/websocket"
)

// MaxInboundMessage bounds a single viewer frame. Viewers only send pings.
const MaxInboundMessage = 4 << 10

// Conn is the transport of one viewer. *websocket.Conn satisfies it.
type Conn interface {
	SetReadLimit(limit int64)
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one registered viewer.
type Client struct {
	conn     Conn
	send     chan []byte
	username string
	scope    auth.Scope

	open      atomic.Bool
	closeOnce sync.Once
}

// Open reports whether the client still accepts messages.
func (c *Client) Open() bool { return c.open.Load() }

type Options struct {
	// SendBuffer is the per-viewer queue length; a full queue drops the message for that viewer.
	SendBuffer   int
	WriteTimeout time.Duration
	// AllowedOrigins is matched against the Origin header on upgrade; "*" allows any.
	AllowedOrigins []string
	Log            *slog.Logger
}

// Hub is the Realtime Fan-out Hub.
//
// Delivery is at-most-once and best-effort: no buffering for absent viewers,
// no replay on reconnect, and one slow or dead viewer never blocks the others.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	opts     Options
	upgrader websocket.Upgrader
}

func New(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 16
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	h := &Hub{
		clients: make(map[*Client]struct{}),
		opts:    opts,
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: h.checkOrigin}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

// NewClient wraps conn for a viewer with the given scope. It is not registered yet.
func (h *Hub) NewClient(conn Conn, username string, scope auth.Scope) *Client {
	return &Client{
		conn:     conn,
		send:     make(chan []byte, h.opts.SendBuffer),
		username: username,
		scope:    scope,
	}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	c.open.Store(true)
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.ActiveViewers.Set(float64(n))
	h.opts.Log.Debug("viewer connected", "username", c.username, "viewers", n)
}

// Unregister removes c. Removing an absent or already removed client is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	c.open.Store(false)
	// send is closed under the write lock so Broadcast never sends on a closed channel.
	c.closeOnce.Do(func() { close(c.send) })
	n := len(h.clients)
	h.mu.Unlock()

	if present {
		metrics.ActiveViewers.Set(float64(n))
		h.opts.Log.Debug("viewer disconnected", "username", c.username, "viewers", n)
	}
}

// Len is the number of registered viewers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastNewCall pushes a stored record to every viewer whose scope admits its agent.
// It returns the number of viewers the message was queued for.
func (h *Hub) BroadcastNewCall(r calls.Record) int {
	return h.Broadcast(r.AgentID, Message{Type: TypeNewCall, Data: r})
}

// Broadcast serializes msg once and queues it for every open viewer in scope of agentID.
// Closed, out-of-scope and backlogged viewers are skipped without error.
func (h *Hub) Broadcast(agentID string, msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		h.opts.Log.Error("push message encode failed", "type", msg.Type, "err", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for c := range h.clients {
		if !c.open.Load() {
			metrics.IncPush("skipped")
			continue
		}
		if !c.scope.Allows(agentID) {
			metrics.IncPush("out_of_scope")
			continue
		}
		select {
		case c.send <- payload:
			delivered++
			metrics.IncPush("delivered")
		default:
			metrics.IncPush("dropped")
			h.opts.Log.Warn("viewer backlog full, message dropped", "username", c.username)
		}
	}
	h.opts.Log.Debug("push broadcast", "type", msg.Type, "agent_id", agentID, "delivered", delivered)
	return delivered
}

// enqueue queues one frame for c unless it is closed or backlogged.
func (h *Hub) enqueue(c *Client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.open.Load() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close disconnects every viewer. Used on shutdown.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
		_ = c.conn.Close()
	}
}

// Serve registers c, runs its writer and blocks in its reader until the transport fails.
func (h *Hub) Serve(c *Client) {
	c.conn.SetReadLimit(MaxInboundMessage)
	h.Register(c)
	go h.writeLoop(c)
	h.readLoop(c)
}

func (h *Hub) readLoop(c *Client) {
	defer func() {
		h.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &base); err != nil {
			continue
		}
		if base.Type == TypePing {
			h.enqueue(c, pongFrame)
		}
	}
}

func (h *Hub) writeLoop(c *Client) {
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.open.Store(false)
			_ = c.conn.Close()
		}
	}
}
