// Package server manages individual WebSocket connections, handling read/write
// pumps, keepalive, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one WebSocket connection. Inbound frames are handed to its
// Session on the read goroutine; outbound frames are queued on send and
// written by the write goroutine.
type Client struct {
	id             string
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	session        *Session
	addr           string
	closed         bool
	maxMessageSize int64
}

// NewClient creates a Client for conn. The send queue holds sendBuffer frames.
func NewClient(id string, conn *websocket.Conn, hub *Hub, session *Session, addr string, maxMessageSize int64, sendBuffer int) *Client {
	if conn != nil {
		conn.SetReadLimit(maxMessageSize)
	}
	if sendBuffer <= 0 {
		sendBuffer = defaultSendBufferSize
	}

	return &Client{
		id:             id,
		conn:           conn,
		send:           make(chan []byte, sendBuffer),
		hub:            hub,
		session:        session,
		addr:           addr,
		maxMessageSize: maxMessageSize,
	}
}

// ID returns the connection identifier.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		slog.Warn("error setting initial read deadline", "conn", c.id, "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError records why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Info("message exceeded maximum size", "conn", c.id, "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		slog.Debug("client disconnected", "conn", c.id, "err", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Debug("client connection closed", "conn", c.id, "err", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		slog.Info("unexpected WebSocket close", "conn", c.id, "addr", c.addr, "err", err)
	default:
		slog.Debug("WebSocket read ended", "conn", c.id, "err", err)
	}
}

// readPump processes inbound frames in order. On exit the connection leaves
// the fan-out set first, then the session retires its roster entry, so the
// final user list goes only to the remaining connections.
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.session.Close()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			slog.Warn("error closing connection in readPump", "conn", c.id, "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		messageType, frame, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			slog.Debug("ignoring non-text frame", "conn", c.id, "type", messageType)
			continue
		}

		c.session.HandleFrame(frame)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				c.writeCloseMessage()
				return
			}
			if !c.writeTextMessage(message) {
				return
			}
		case <-ticker.C:
			if !c.writePing() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		slog.Warn("error closing connection in writePump", "conn", c.id, "err", err)
	}
}

func (c *Client) writeCloseMessage() {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return
	}
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		slog.Debug("error writing close message", "conn", c.id, "err", err)
	}
}

// writeTextMessage writes one event frame. A failed write ends the pump; the
// read side notices the closed socket and retires the connection.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		slog.Debug("error setting write deadline", "conn", c.id, "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			slog.Debug("error writing message", "conn", c.id, "err", err)
		}
		return false
	}
	return true
}

func (c *Client) writePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		slog.Debug("error writing ping", "conn", c.id, "err", err)
		return false
	}
	return true
}
