package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relaychat/internal/roster"
)

// Server owns the roster, the hub and the HTTP listener of one relay process.
type Server struct {
	cfg      Config
	roster   *roster.Roster
	hub      *Hub
	metrics  *Metrics
	origins  originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

// New builds a Server from cfg. Call Start before serving requests.
func New(cfg Config) *Server {
	cfg = cfg.Sanitize()
	metrics := NewMetrics()
	origins := newOriginPolicy(cfg.AllowedOrigins)

	s := &Server{
		cfg:     cfg,
		roster:  roster.New(),
		hub:     NewHub(metrics),
		metrics: metrics,
		origins: origins,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     origins.checkOrigin,
		},
	}
	s.http = CreateServer(cfg.Addr(), s.Routes())
	return s
}

// Start runs the hub loop and the periodic metrics log.
func (s *Server) Start() {
	go s.hub.Run()
	s.metrics.StartPeriodicLog(s.cfg.MetricsLogInterval, s.hub.Done())
}

// ListenAndServe serves HTTP on the configured address until Shutdown.
func (s *Server) ListenAndServe() error {
	return StartServer(s.http)
}

// Shutdown stops accepting requests, then closes every WebSocket connection.
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := ShutdownServer(ctx, s.http)

	timeout := 5 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	return errors.Join(httpErr, s.hub.Shutdown(timeout))
}

// Config returns the sanitized configuration.
func (s *Server) Config() Config {
	return s.cfg
}

// Roster returns the live roster.
func (s *Server) Roster() *roster.Roster {
	return s.roster
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Metrics returns the server's counters.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}
