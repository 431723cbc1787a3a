// Package server wires HTTP handlers into a gorilla/mux router for the relay.
package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Routes returns the application handler: liveness, WebSocket endpoint,
// metrics and the test page, wrapped in the CORS allow-list.
func (s *Server) Routes() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/", HealthHandler).Methods(http.MethodGet, http.MethodHead)
	router.HandleFunc("/ws", s.WebSocketHandler)
	router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	router.HandleFunc("/test", TestPageHandler).Methods(http.MethodGet)
	return s.origins.corsMiddleware(router)
}
