package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// Metrics tracks relay runtime statistics.
// All counters use atomic operations for lock-free concurrent access.
type Metrics struct {
	startTime time.Time

	ActiveConnections atomic.Int64 // currently open WebSocket connections
	TotalConnections  atomic.Int64 // lifetime upgraded connections
	Registrations     atomic.Int64 // register user events applied (including renames)
	Disconnects       atomic.Int64 // connections closed

	ChatMessagesRelayed atomic.Int64 // chat messages fanned out
	ChatMessagesDropped atomic.Int64 // chat messages rejected by validation
	ImageBytesRelayed   atomic.Int64 // imageData bytes of relayed image messages

	FramesDropped      atomic.Int64 // outbound frames not queued for a recipient
	SlowClientsEvicted atomic.Int64 // connections closed because their queue was full
}

// NewMetrics creates a new Metrics instance with the start time set to now.
func NewMetrics() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// MetricsSnapshot is a point-in-time view of all counters.
type MetricsSnapshot struct {
	Uptime              time.Duration
	ActiveConnections   int64
	TotalConnections    int64
	Registrations       int64
	Disconnects         int64
	ChatMessagesRelayed int64
	ChatMessagesDropped int64
	ImageBytesRelayed   int64
	FramesDropped       int64
	SlowClientsEvicted  int64
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		Uptime:              time.Since(m.startTime),
		ActiveConnections:   m.ActiveConnections.Load(),
		TotalConnections:    m.TotalConnections.Load(),
		Registrations:       m.Registrations.Load(),
		Disconnects:         m.Disconnects.Load(),
		ChatMessagesRelayed: m.ChatMessagesRelayed.Load(),
		ChatMessagesDropped: m.ChatMessagesDropped.Load(),
		ImageBytesRelayed:   m.ImageBytesRelayed.Load(),
		FramesDropped:       m.FramesDropped.Load(),
		SlowClientsEvicted:  m.SlowClientsEvicted.Load(),
	}
}

// LogSummary writes the current counters to the default logger.
func (m *Metrics) LogSummary() {
	s := m.Snapshot()
	slog.Info("metrics",
		"uptime", s.Uptime.Truncate(time.Second).String(),
		"connections", s.ActiveConnections,
		"total_connections", s.TotalConnections,
		"chat_relayed", s.ChatMessagesRelayed,
		"chat_dropped", s.ChatMessagesDropped,
		"frames_dropped", s.FramesDropped,
	)
}

// StartPeriodicLog logs a summary every interval until done is closed.
func (m *Metrics) StartPeriodicLog(interval time.Duration, done <-chan struct{}) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.LogSummary()
			}
		}
	}()
}

// ServeHTTP writes all metrics in Prometheus text exposition format.
func (m *Metrics) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	s := m.Snapshot()
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	// Write errors to http.ResponseWriter are non-actionable.
	write := func(name, help, mtype string, value int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		_, _ = fmt.Fprintf(w, "%s %d\n", name, value)
	}

	_, _ = fmt.Fprintf(w, "# HELP relaychat_uptime_seconds Server uptime in seconds.\n")
	_, _ = fmt.Fprintf(w, "# TYPE relaychat_uptime_seconds gauge\n")
	_, _ = fmt.Fprintf(w, "relaychat_uptime_seconds %f\n", s.Uptime.Seconds())

	write("relaychat_connections_active", "Currently open WebSocket connections.", "gauge", s.ActiveConnections)
	write("relaychat_connections_total", "WebSocket connections accepted.", "counter", s.TotalConnections)
	write("relaychat_registrations_total", "Register user events applied.", "counter", s.Registrations)
	write("relaychat_disconnects_total", "WebSocket connections closed.", "counter", s.Disconnects)
	write("relaychat_chat_messages_relayed_total", "Chat messages fanned out.", "counter", s.ChatMessagesRelayed)
	write("relaychat_chat_messages_dropped_total", "Chat messages dropped by validation.", "counter", s.ChatMessagesDropped)
	write("relaychat_image_bytes_relayed_total", "Inline image bytes relayed.", "counter", s.ImageBytesRelayed)
	write("relaychat_frames_dropped_total", "Outbound frames not delivered to a recipient.", "counter", s.FramesDropped)
	write("relaychat_slow_clients_evicted_total", "Connections closed for a full send queue.", "counter", s.SlowClientsEvicted)
}
