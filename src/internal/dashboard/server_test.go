package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoangvu/wireproxyman/src/internal/events"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

func newTestServer(t *testing.T) (*Server, *profile.Store, *events.Bus) {
	t.Helper()
	store := profile.NewStore(t.TempDir(), func(pid int) bool { return pid > 0 })
	bus := events.NewBus()
	srv := NewServer(store, bus, func() int { return 10 })
	return srv, store, bus
}

func TestHandleProfiles(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.Add(profile.Profile{Name: "vpn-a", PID: 1, ProxyPort: 60000, Running: true}))
	require.NoError(t, store.Add(profile.Profile{Name: "vpn-b"}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var profiles []profile.Profile
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	require.Len(t, profiles, 2)
	assert.Equal(t, "vpn-a", profiles[0].Name)
	assert.True(t, profiles[0].Running)
}

func TestHandleProfiles_MethodNotAllowed(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/profiles", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStatus(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.Add(profile.Profile{Name: "vpn-a", PID: 1, ProxyPort: 60000, Running: true}))
	require.NoError(t, store.Add(profile.Profile{Name: "vpn-b"}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, 2, status["profiles"])
	assert.Equal(t, 1, status["running"])
	assert.Equal(t, 10, status["portLimit"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, store, _ := newTestServer(t)
	require.NoError(t, store.Add(profile.Profile{Name: "vpn-a", PID: 1, ProxyPort: 60000, Running: true}))

	srv.metrics.observe(events.Event{Type: events.ProfileStarted, Profile: "vpn-a", Port: 60000})
	srv.metrics.observe(events.Event{Type: events.ProfileStopped, Profile: "vpn-a"})
	srv.metrics.observe(events.Event{Type: events.AutoConnectProgress, Profile: "vpn-b", Error: "no free port"})
	srv.metrics.observe(events.Event{Type: events.AutoConnectFinished, Started: 1, Attempted: 2})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "wireproxyman_connects_total 1")
	assert.Contains(t, body, "wireproxyman_disconnects_total 1")
	assert.Contains(t, body, "wireproxyman_connect_failures_total 1")
	assert.Contains(t, body, "wireproxyman_autoconnect_runs_total 1")
	assert.Contains(t, body, "wireproxyman_running_profiles 1")
}

func TestWebSocketOriginCheck(t *testing.T) {
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:8080", true},
		{"http://127.0.0.1:9000", true},
		{"https://localhost:8443", true},
		{"http://evil.example.com", false},
		{"http://localhost.evil.com", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		assert.Equal(t, tt.want, upgrader.CheckOrigin(r), "origin %q", tt.origin)
	}
}

func TestWebSocketEventFeed(t *testing.T) {
	srv, _, bus := newTestServer(t)

	port, err := srv.Start(0)
	require.NoError(t, err)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	wsURL := fmt.Sprintf("ws://127.0.0.1:%d/ws", port)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// The server registers the client asynchronously after the upgrade;
	// keep publishing until the event comes through.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				bus.Publish(events.Event{Type: events.ProfileStarted, Profile: "vpn-a", Port: 60000})
			}
		}
	}()

	var e events.Event
	require.NoError(t, conn.ReadJSON(&e))
	assert.Equal(t, events.ProfileStarted, e.Type)
	assert.Equal(t, "vpn-a", e.Profile)
	assert.Equal(t, 60000, e.Port)
}
