// Package server coordinates connection tracking, fan-out, and connection
// cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/roster"
)

// Broadcaster delivers named events to every open connection.
type Broadcaster interface {
	// BroadcastAll sends event to all open connections, the sender included.
	BroadcastAll(event string, payload any)
	// BroadcastRoster announces the current contents of r as a user list.
	BroadcastRoster(r *roster.Roster)
}

// BroadcastMessage is an encoded frame waiting to be fanned out by the hub loop.
type BroadcastMessage struct {
	Event   string
	Payload []byte
}

// Hub tracks every open connection and fans out frames to them. The
// connection set is only mutated by the Run loop.
type Hub struct {
	clients    map[string]*Client
	broadcast  chan BroadcastMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	presenceMu sync.Mutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	metrics    *Metrics
}

// NewHub creates a Hub ready to be started with Run.
func NewHub(metrics *Metrics) *Hub {
	if metrics == nil {
		metrics = NewMetrics()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan BroadcastMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		metrics:    metrics,
	}
}

// Register hands a new connection to the hub, which starts its pumps.
// It returns false if the hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Unregister removes a connection from the fan-out set. Unknown or already
// removed connections are ignored.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// BroadcastAll encodes the event once and queues it for every open connection.
func (h *Hub) BroadcastAll(event string, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		slog.Error("failed to encode broadcast", "event", event, "err", err)
		return
	}

	select {
	case h.broadcast <- BroadcastMessage{Event: event, Payload: frame}:
	case <-h.ctx.Done():
	}
}

// BroadcastRoster snapshots r and broadcasts it as a user list. Announcements
// are serialized so every connection receives them in snapshot order.
func (h *Hub) BroadcastRoster(r *roster.Roster) {
	h.presenceMu.Lock()
	defer h.presenceMu.Unlock()

	h.BroadcastAll(protocol.EventUserList, r.Snapshot())
}

// ClientCount returns the number of open connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Done is closed once the Run loop has exited.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run is the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		slog.Warn("received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.metrics.ActiveConnections.Add(1)
	h.metrics.TotalConnections.Add(1)
	slog.Info("connection opened", "conn", client.id, "addr", client.addr, "connections", clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump(h.ctx)
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) handleUnregister(client *Client) {
	h.mutex.Lock()
	current, ok := h.clients[client.id]
	if !ok || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.metrics.ActiveConnections.Add(-1)
	slog.Info("connection closed", "conn", client.id, "addr", client.addr, "connections", clientCount)
}

func (h *Hub) handleBroadcast(msg BroadcastMessage) {
	clients := h.getClientSnapshot()
	slog.Debug("broadcasting", "event", msg.Event, "recipients", len(clients), "bytes", len(msg.Payload))

	var clientsToRemove []*Client
	for _, client := range clients {
		if !h.safeSend(client, msg.Payload) {
			h.metrics.FramesDropped.Add(1)
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.removeFailedClients(clientsToRemove)
}

func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients evicts connections whose send queue is full. Closing the
// queue makes the write pump send a close frame, which ends the read pump and
// runs the normal disconnect path.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if current, exists := h.clients[client.id]; exists && current == client {
			delete(h.clients, client.id)
			client.closed = true
			channelsToClose = append(channelsToClose, client.send)
			h.metrics.ActiveConnections.Add(-1)
			h.metrics.SlowClientsEvicted.Add(1)
			slog.Warn("evicting connection with full send queue", "conn", client.id, "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection", "conn", client.id, "err", err)
		}
	}

	slog.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the hub, closes every connection and waits for the
// per-connection goroutines to finish, or for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
