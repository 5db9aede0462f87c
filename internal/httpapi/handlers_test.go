package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"calllog-dashboard/internal/audit"
	"calllog-dashboard/internal/auth"
	"calllog-dashboard/internal/calls"
	"calllog-dashboard/internal/config"
	"calllog-dashboard/internal/rbac"
	"calllog-dashboard/internal/reporting"
	"calllog-dashboard/internal/store"
	"calllog-dashboard/internal/tenancy"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router *gin.Engine
	mem    *store.Memory
	auth   *auth.Manager
}

func intp(v int) *int { return &v }

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	mem := store.NewMemory()
	for _, a := range []tenancy.AgentConfig{
		{ID: "agent_1", BrandingName: "Acme"},
		{ID: "agent_2", BrandingName: "Globex"},
	} {
		_, err := mem.CreateAgent(ctx, a)
		require.NoError(t, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte("alice-pw"), bcrypt.MinCost)
	require.NoError(t, err)
	_, err = mem.CreateUser(ctx, tenancy.DashboardUser{Username: "alice", PasswordHash: string(hash), AllowedAgentIDs: []string{"agent_1"}})
	require.NoError(t, err)

	base := time.Now().UTC().Add(-time.Hour)
	for i, r := range []calls.Record{
		{ID: "conv_a1", AgentID: "agent_1", CallerNumber: "+15550001", Transcript: "agent: Hi\nuser: refund please", Duration: intp(60)},
		{ID: "conv_a2", AgentID: "agent_1", CallerNumber: "+15550002", Transcript: "agent: Hello", Duration: intp(90)},
		{ID: "conv_b1", AgentID: "agent_2", CallerNumber: "+15550003", Transcript: "agent: Yo"},
	} {
		r.Timestamp = base.Add(time.Duration(i) * time.Minute)
		_, err := mem.InsertCall(ctx, r)
		require.NoError(t, err)
	}

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: 24 * time.Hour})
	require.NoError(t, err)

	h := Handlers{
		Auth:    m,
		Gate:    auth.NewGate(mem, auth.GateConfig{DashboardPassword: "legacy-pw"}),
		Store:   mem,
		Reports: reporting.NewService(mem, time.UTC),
		Audit:   audit.NewService(audit.RepositoryFunc(mem.AppendAuditEvent)),
	}

	r := gin.New()
	r.GET("/health", h.Health)
	r.POST("/api/login", h.Login)
	r.POST("/api/auth/refresh", h.Refresh)

	api := r.Group("/api", auth.RequireAccessToken(m))
	api.GET("/calls", rbac.ResolveScope(), h.ListCalls)
	api.GET("/calls/:id", h.GetCall)
	api.PATCH("/calls/:id", h.UpdateCallFlag)
	api.GET("/stats", rbac.ResolveScope(), h.Stats)

	admin := api.Group("/admin", rbac.RequireDeveloper())
	admin.GET("/agents", h.ListAgents)
	admin.POST("/agents", h.CreateAgent)
	admin.GET("/users", h.ListUsers)
	admin.POST("/users", h.CreateUser)

	return testEnv{router: r, mem: mem, auth: m}
}

func (e testEnv) token(t *testing.T, id auth.Identity) string {
	t.Helper()
	p, err := e.auth.IssuePair(time.Now(), id)
	require.NoError(t, err)
	return p.AccessToken
}

func (e testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		_ = json.NewEncoder(&buf).Encode(v)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

var (
	viewer    = auth.Identity{Username: "alice", Scope: auth.Scope{AgentIDs: []string{"agent_1"}}}
	developer = auth.Identity{Username: "dashboard", Developer: true, Scope: auth.Scope{Unrestricted: true}}
)

func TestLogin_UsernameReturnsScopedSession(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "alice-pw"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode[sessionResponse](t, w)
	assert.True(t, body.Success)
	assert.NotEmpty(t, body.Token)
	assert.NotEmpty(t, body.RefreshToken)
	assert.Equal(t, int64(3600), body.ExpiresIn)
	assert.Equal(t, []string{"agent_1"}, body.User.AllowedAgentIDs)
	require.Len(t, body.User.Agents, 1)
	assert.Equal(t, "Acme", body.User.Agents[0].BrandingName)
	assert.NotContains(t, w.Body.String(), "password_hash")
}

func TestLogin_LegacyPasswordIsUnrestricted(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodPost, "/api/login", "", gin.H{"password": "legacy-pw"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[sessionResponse](t, w)
	assert.True(t, body.User.IsDeveloper)
	assert.ElementsMatch(t, []string{"agent_1", "agent_2"}, body.User.AllowedAgentIDs)
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body any
		code int
		msg  string
	}{
		{"bad json", "{", http.StatusBadRequest, "Invalid JSON payload"},
		{"missing password", gin.H{"username": "alice"}, http.StatusBadRequest, "Password is required"},
		{"wrong password", gin.H{"username": "alice", "password": "nope"}, http.StatusUnauthorized, "Invalid credentials"},
		{"unknown user", gin.H{"username": "mallory", "password": "nope"}, http.StatusUnauthorized, "Invalid credentials"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/login", "", tc.body)
			assert.Equal(t, tc.code, w.Code)
			assert.Equal(t, tc.msg, decode[map[string]string](t, w)["error"])
		})
	}
}

func TestRefresh_ReissuesFromStore(t *testing.T) {
	env := newTestEnv(t)

	login := decode[sessionResponse](t, env.do(http.MethodPost, "/api/login", "", gin.H{"username": "alice", "password": "alice-pw"}))

	w := env.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": login.RefreshToken})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[sessionResponse](t, w)
	assert.Equal(t, "Token refreshed", body.Message)
	assert.Equal(t, []string{"agent_1"}, body.User.AllowedAgentIDs)

	w = env.do(http.MethodPost, "/api/auth/refresh", "", gin.H{"refresh_token": login.Token})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListCalls_ScopeAndFilters(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, viewer)

	w := env.do(http.MethodGet, "/api/calls", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[listCallsResponse](t, w)
	assert.Equal(t, 2, body.Total)
	assert.Equal(t, calls.DefaultPageLimit, body.Limit)
	require.Len(t, body.Calls, 2)
	assert.Equal(t, "conv_a2", body.Calls[0].ID)

	body = decode[listCallsResponse](t, env.do(http.MethodGet, "/api/calls?search=REFUND", tok, nil))
	require.Len(t, body.Calls, 1)
	assert.Equal(t, "conv_a1", body.Calls[0].ID)

	body = decode[listCallsResponse](t, env.do(http.MethodGet, "/api/calls?agent_ids=agent_2", tok, nil))
	assert.Equal(t, 0, body.Total)
	assert.NotNil(t, body.Calls)

	body = decode[listCallsResponse](t, env.do(http.MethodGet, "/api/calls?limit=1&offset=1", env.token(t, developer), nil))
	assert.Equal(t, 3, body.Total)
	require.Len(t, body.Calls, 1)
	assert.Equal(t, "conv_a2", body.Calls[0].ID)
}

func TestListCalls_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, viewer)

	for _, q := range []string{"limit=abc", "offset=-1", "from_date=yesterday", "to_date=2026-13-01"} {
		w := env.do(http.MethodGet, "/api/calls?"+q, tok, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestListCalls_RequiresToken(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/calls", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Access token required", decode[map[string]string](t, w)["error"])
}

func TestGetCall_OutOfScopeIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, viewer)

	w := env.do(http.MethodGet, "/api/calls/conv_a1", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "conv_a1", decode[calls.Record](t, w).ID)

	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/calls/conv_b1", tok, nil).Code)
	assert.Equal(t, http.StatusNotFound, env.do(http.MethodGet, "/api/calls/missing", tok, nil).Code)
}

func TestUpdateCallFlag(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, viewer)

	w := env.do(http.MethodPatch, "/api/calls/conv_a1", tok, `{"is_flagged_for_review": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode[struct {
		Message string       `json:"message"`
		Call    calls.Record `json:"call"`
	}](t, w)
	assert.Equal(t, "Call flag status updated successfully", body.Message)
	assert.True(t, body.Call.IsFlaggedForReview)
	first := body.Call

	got, err := env.mem.GetCall(context.Background(), "conv_a1")
	require.NoError(t, err)
	assert.True(t, got.IsFlaggedForReview)

	// setting the same value again succeeds and leaves the record unchanged
	w = env.do(http.MethodPatch, "/api/calls/conv_a1", tok, `{"is_flagged_for_review": true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	again, err := env.mem.GetCall(context.Background(), "conv_a1")
	require.NoError(t, err)
	assert.Equal(t, got, again)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, again.IsFlaggedForReview)

	events := env.mem.AuditEvents()
	require.Len(t, events, 2)
	assert.Equal(t, audit.EventTypeFlagUpdated, events[0].Type)
	assert.Equal(t, "alice", events[0].Actor)

	for _, bad := range []string{`{"is_flagged_for_review": "true"}`, `{"is_flagged_for_review": 1}`, `{}`, `{"is_flagged_for_review": null}`} {
		w := env.do(http.MethodPatch, "/api/calls/conv_a1", tok, bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
		assert.Equal(t, "is_flagged_for_review must be a boolean", decode[map[string]string](t, w)["error"])
	}

	w = env.do(http.MethodPatch, "/api/calls/conv_b1", tok, `{"is_flagged_for_review": true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStats_Scoped(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/api/stats", env.token(t, viewer), nil)
	require.Equal(t, http.StatusOK, w.Code)
	s := decode[reporting.Stats](t, w)
	assert.Equal(t, 2, s.TotalCalls)
	assert.Equal(t, 3, s.TotalDurationMinutes)
	assert.Equal(t, 2, s.UniqueCallers)
	assert.Equal(t, 2, s.TotalBotReplies)

	s = decode[reporting.Stats](t, env.do(http.MethodGet, "/api/stats?agent_ids=agent_2", env.token(t, developer), nil))
	assert.Equal(t, 1, s.TotalCalls)
}

func TestAdmin_RequiresDeveloper(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(http.MethodGet, "/api/admin/users", env.token(t, viewer), nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAdmin_CreateAndListAgents(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, developer)

	w := env.do(http.MethodPost, "/api/admin/agents", tok, gin.H{
		"agent_id":      "agent_3",
		"branding_name": "Initech",
		"evaluation_criteria_config": gin.H{
			"greeting": gin.H{"name": "Greeting", "description": "Agent greets the caller"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		Agent tenancy.AgentConfig `json:"agent"`
	}](t, w)
	assert.Equal(t, "Initech", created.Agent.BrandingName)
	assert.Equal(t, "Greeting", created.Agent.EvaluationCriteriaConfig["greeting"].Name)

	assert.Equal(t, http.StatusConflict, env.do(http.MethodPost, "/api/admin/agents", tok, gin.H{"agent_id": "agent_3", "branding_name": "Dup"}).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodPost, "/api/admin/agents", tok, gin.H{"branding_name": "No id"}).Code)

	list := decode[struct {
		Agents []tenancy.AgentConfig `json:"agents"`
	}](t, env.do(http.MethodGet, "/api/admin/agents", tok, nil))
	assert.Len(t, list.Agents, 3)

	events := env.mem.AuditEvents()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeAgentCreated, events[0].Type)
}

func TestAdmin_CreateUserNeverReturnsHash(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, developer)

	w := env.do(http.MethodPost, "/api/admin/users", tok, gin.H{
		"username": "bob", "password": "bob-password", "allowed_agent_ids": []string{"agent_2", "agent_2"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotContains(t, w.Body.String(), "password")

	u, err := env.mem.GetUserByUsername(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, []string{"agent_2"}, u.AllowedAgentIDs)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("bob-password")))

	w = env.do(http.MethodGet, "/api/admin/users", tok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "$2a$")
	assert.Len(t, decode[struct {
		Users []tenancy.DashboardUser `json:"users"`
	}](t, w).Users, 2)

	login := env.do(http.MethodPost, "/api/login", "", gin.H{"username": "bob", "password": "bob-password"})
	assert.Equal(t, http.StatusOK, login.Code)
}

func TestAdmin_CreateUserValidation(t *testing.T) {
	env := newTestEnv(t)
	tok := env.token(t, developer)

	cases := []struct {
		name string
		body gin.H
		code int
	}{
		{"short password", gin.H{"username": "bob", "password": "short"}, http.StatusBadRequest},
		{"short username", gin.H{"username": "bo", "password": "long-enough"}, http.StatusBadRequest},
		{"reserved username", gin.H{"username": "Dashboard", "password": "long-enough"}, http.StatusBadRequest},
		{"unknown agent", gin.H{"username": "bob", "password": "long-enough", "allowed_agent_ids": []string{"agent_9"}}, http.StatusBadRequest},
		{"duplicate", gin.H{"username": "ALICE", "password": "long-enough"}, http.StatusConflict},
		{"multibyte password over 72 bytes", gin.H{"username": "bob", "password": strings.Repeat("é", 40)}, http.StatusBadRequest},
		{"blank agent id", gin.H{"username": "bob", "password": "long-enough", "allowed_agent_ids": []string{" "}}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(http.MethodPost, "/api/admin/users", tok, tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}

	w := env.do(http.MethodPost, "/api/admin/users", tok, gin.H{"username": "bob", "password": strings.Repeat("é", 40)})
	assert.Equal(t, "password must not exceed 72 bytes", decode[map[string]string](t, w)["error"])

	w = env.do(http.MethodPost, "/api/admin/users", tok, gin.H{"username": "bob", "password": "long-enough", "allowed_agent_ids": []string{" "}})
	assert.Equal(t, "allowed_agent_ids[0] is required", decode[map[string]string](t, w)["error"])

	w = env.do(http.MethodPost, "/api/admin/users", tok, gin.H{"username": "bob", "password": "long-enough", "allowed_agent_ids": []string{" agent_1", "agent_1 "}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[struct {
		User struct {
			AllowedAgentIDs []string `json:"allowed_agent_ids"`
		} `json:"user"`
	}](t, w)
	assert.Equal(t, []string{"agent_1"}, created.User.AllowedAgentIDs)
}

type failingStore struct {
	*store.Memory
}

func (failingStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]string](t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, store.DriverMemory, body["database"])
	assert.NotEmpty(t, body["timestamp"])

	h := Handlers{Store: failingStore{store.NewMemory()}}
	r := gin.New()
	r.GET("/health", h.Health)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode[map[string]string](t, w)["status"])
}
