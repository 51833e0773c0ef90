// Package dashboard exposes a localhost HTTP surface for observers: a JSON
// snapshot of profiles, a websocket event feed, and Prometheus metrics.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hoangvu/wireproxyman/src/internal/events"
	"github.com/hoangvu/wireproxyman/src/internal/profile"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Empty origin is allowed for non-browser clients; browsers must be
		// local to keep cross-site websocket hijacking off the table.
		if origin == "" {
			return true
		}
		return strings.HasPrefix(origin, "http://localhost:") ||
			strings.HasPrefix(origin, "http://127.0.0.1:") ||
			strings.HasPrefix(origin, "https://localhost:") ||
			strings.HasPrefix(origin, "https://127.0.0.1:")
	},
}

// clientConn wraps a websocket connection with a write mutex for safe
// concurrent writes.
type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Server is the dashboard HTTP server.
type Server struct {
	store     *profile.Store
	bus       *events.Bus
	portLimit func() int

	mux    *http.ServeMux
	server *http.Server

	clients   map[*clientConn]bool
	clientsMu sync.RWMutex

	metrics *metrics
}

// NewServer creates a dashboard over the given store and event bus.
func NewServer(store *profile.Store, bus *events.Bus, portLimit func() int) *Server {
	s := &Server{
		store:     store,
		bus:       bus,
		portLimit: portLimit,
		mux:       http.NewServeMux(),
		clients:   make(map[*clientConn]bool),
	}
	s.metrics = newMetrics(store)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/profiles", s.handleProfiles)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/ws", s.handleWebSocket)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
}

// Start binds the server to localhost on the given port (0 picks a free one)
// and begins forwarding bus events to websocket clients. It returns the bound
// port.
func (s *Server) Start(port int) (int, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return 0, fmt.Errorf("failed to bind dashboard listener: %w", err)
	}
	bound := listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	sub := s.bus.Subscribe(64)
	go s.forwardEvents(sub)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("dashboard server error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("dashboard listening", slog.Int("port", bound))
	return bound, nil
}

// Shutdown stops the server and disconnects all websocket clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.clientsMu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.clients = make(map[*clientConn]bool)
	s.clientsMu.Unlock()

	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.mux }

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.store.RefreshLiveness()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.store.Snapshot()); err != nil {
		slog.Warn("failed to encode profiles", slog.String("error", err.Error()))
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.store.RefreshLiveness()

	running := 0
	for _, p := range s.store.Snapshot() {
		if p.Running {
			running++
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"profiles":  s.store.Len(),
		"running":   running,
		"portLimit": s.portLimit(),
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	client := &clientConn{conn: conn}
	s.clientsMu.Lock()
	s.clients[client] = true
	s.clientsMu.Unlock()

	// Reader loop exists only to notice the peer going away.
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			s.clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// forwardEvents feeds bus events to the metrics collector and every
// connected websocket client.
func (s *Server) forwardEvents(sub chan events.Event) {
	for e := range sub {
		s.metrics.observe(e)

		payload, err := json.Marshal(e)
		if err != nil {
			continue
		}

		s.clientsMu.RLock()
		conns := make([]*clientConn, 0, len(s.clients))
		for c := range s.clients {
			conns = append(conns, c)
		}
		s.clientsMu.RUnlock()

		for _, c := range conns {
			c.writeMu.Lock()
			err := c.conn.WriteMessage(websocket.TextMessage, payload)
			c.writeMu.Unlock()
			if err != nil {
				s.clientsMu.Lock()
				delete(s.clients, c)
				s.clientsMu.Unlock()
				c.conn.Close()
			}
		}
	}
}
