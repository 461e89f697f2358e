package websocket

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/snapgram/internal/auth"
	"github.com/zfogg/snapgram/internal/logger"
)

func TestMain(m *testing.M) {
	// Initialize logger for tests
	_ = logger.Initialize("error", "-")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type testServer struct {
	hub    *Hub
	auth   *auth.Service
	router *gin.Engine
	srv    *httptest.Server
}

func newTestServer(t *testing.T, cfg HandlerConfig) *testServer {
	t.Helper()
	hub := NewHub(HubConfig{})
	svc := auth.NewService(nil, []byte("test-secret"), time.Hour)
	handler := NewHandler(hub, svc, cfg)

	router := gin.New()
	router.GET("/ws", handler.HandleWebSocket)
	router.GET("/api/ws/online", handler.HandleOnlineUsers)
	router.POST("/api/ws/status", handler.HandleOnlineStatus)
	router.GET("/api/ws/stats", handler.HandleStats)

	ts := &testServer{hub: hub, auth: svc, router: router, srv: httptest.NewServer(router)}
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		ts.srv.Close()
	})
	return ts
}

func (ts *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, _, err := ts.auth.IssueToken(userID)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) dial(t *testing.T, token, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws" + query
	opts := &websocket.DialOptions{}
	if token != "" {
		opts.HTTPHeader = http.Header{"Authorization": []string{"Bearer " + token}}
	}
	conn, _, err := websocket.Dial(ctx, url, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func (ts *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

// readEvent reads frames until one carries event
func readEvent(t *testing.T, conn *websocket.Conn, event string) *Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	for {
		var msg Message
		require.NoError(t, wsjson.Read(ctx, conn, &msg))
		if msg.Event == event {
			return &msg
		}
	}
}

func readRoster(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	var users []string
	require.NoError(t, readEvent(t, conn, EventPresenceRoster).ParsePayload(&users))
	return users
}

func TestWebSocketRoundTrip(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{AllowAnonymous: true})

	viewer := ts.dial(t, "", "")
	assert.Empty(t, readRoster(t, viewer))

	alice := ts.dial(t, ts.token(t, "alice"), "?userId=alice")
	assert.Equal(t, []string{"alice"}, readRoster(t, alice))
	assert.Equal(t, []string{"alice"}, readRoster(t, viewer))

	require.Eventually(t, func() bool { return ts.hub.IsOnline("alice") }, waitFor, tick)
	assert.True(t, ts.hub.Deliver("alice", EventNotification, map[string]string{"type": "follow", "sender": "bob"}))

	msg := readEvent(t, alice, EventNotification)
	var note map[string]string
	require.NoError(t, msg.ParsePayload(&note))
	assert.Equal(t, "follow", note["type"])
	assert.False(t, msg.Timestamp.IsZero())

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, "bye"))
	assert.Empty(t, readRoster(t, viewer))
	assert.Eventually(t, func() bool { return ts.hub.ConnectionCount() == 1 }, waitFor, tick)
}

func TestWebSocketTokenFromQuery(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{})

	conn := ts.dial(t, "", "?token="+ts.token(t, "carol"))
	assert.Equal(t, []string{"carol"}, readRoster(t, conn))
}

func TestWebSocketAuthentication(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{AllowAnonymous: false})
	valid := ts.token(t, "alice")

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing token", "/ws", http.StatusUnauthorized},
		{"invalid token", "/ws?token=garbage", http.StatusUnauthorized},
		{"userId mismatch", "/ws?token=" + valid + "&userId=mallory", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodGet, tt.path, nil)
			assert.Equal(t, tt.status, w.Code)
		})
	}
	assert.Equal(t, 0, ts.hub.ConnectionCount())
}

func TestWebSocketAnonymousCannotClaimUser(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{AllowAnonymous: true})

	w := ts.do(http.MethodGet, "/ws?userId=alice", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebSocketRateLimitEvicts(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{
		Client: ClientOptions{RateLimit: RateLimitConfig{MaxMessagesPerSecond: 1, BurstSize: 2}},
	})
	conn := ts.dial(t, ts.token(t, "spammer"), "")
	readRoster(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	for i := 0; i < 5; i++ {
		if err := conn.Write(ctx, websocket.MessageText, []byte(`{}`)); err != nil {
			break
		}
	}

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Eventually(t, func() bool { return !ts.hub.IsOnline("spammer") }, waitFor, tick)
}

func TestWebSocketHeartbeatEvictsSilentPeer(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{
		Client: ClientOptions{PingInterval: 20 * time.Millisecond},
	})
	// a peer that never reads never answers pings
	ts.dial(t, ts.token(t, "sleepy"), "")

	require.Eventually(t, func() bool { return ts.hub.IsOnline("sleepy") }, waitFor, tick)
	assert.Eventually(t, func() bool {
		return !ts.hub.IsOnline("sleepy") && ts.hub.Stats().ConnectionsEvicted == 1
	}, waitFor, tick)
}

func TestOnlineEndpoints(t *testing.T) {
	ts := newTestServer(t, HandlerConfig{})
	ts.hub.Attach(newFakeConn("alice"))

	w := ts.do(http.MethodGet, "/api/ws/online", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var online struct {
		Users []string `json:"users"`
		Count int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &online))
	assert.Equal(t, []string{"alice"}, online.Users)
	assert.Equal(t, 1, online.Count)

	w = ts.do(http.MethodPost, "/api/ws/status", map[string][]string{"user_ids": {"alice", "bob"}})
	require.Equal(t, http.StatusOK, w.Code)
	var statuses struct {
		Statuses []OnlineStatus `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &statuses))
	assert.Equal(t, []OnlineStatus{{UserID: "alice", IsOnline: true}, {UserID: "bob", IsOnline: false}}, statuses.Statuses)

	w = ts.do(http.MethodPost, "/api/ws/status", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(http.MethodPost, "/api/ws/status", map[string][]string{"user_ids": make([]string, maxStatusQuery+1)})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = ts.do(http.MethodGet, "/api/ws/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats StatsSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.RegisteredUsers)
	assert.Equal(t, "single", stats.SessionMode)
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(5, 10)

	for i := 0; i < 10; i++ {
		assert.True(t, rl.Allow(), "Request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow(), "Request 11 should be denied")

	time.Sleep(300 * time.Millisecond)
	assert.True(t, rl.Allow(), "Request after wait should be allowed")
}
