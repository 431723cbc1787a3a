package server

import (
	"encoding/json"
	"log/slog"

	"github.com/Tyrowin/relaychat/internal/protocol"
	"github.com/Tyrowin/relaychat/internal/roster"
)

// SessionState is the lifecycle state of one connection.
type SessionState int

// Session states. Closed is terminal.
const (
	StateUnregistered SessionState = iota
	StateRegistered
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateUnregistered:
		return "unregistered"
	case StateRegistered:
		return "registered"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SessionOptions tunes session policy.
type SessionOptions struct {
	// RequireRegistration drops chat messages from connections that have not
	// sent register user. Off by default: unregistered connections may chat.
	RequireRegistration bool
}

// Session translates one connection's inbound events into roster changes and
// broadcasts. It is driven by a single goroutine (the connection's read loop)
// and is not safe for concurrent use.
type Session struct {
	id      string
	state   SessionState
	roster  *roster.Roster
	out     Broadcaster
	metrics *Metrics
	opts    SessionOptions
}

// NewSession creates a session for connection id in the unregistered state.
func NewSession(id string, r *roster.Roster, out Broadcaster, metrics *Metrics, opts SessionOptions) *Session {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Session{
		id:      id,
		state:   StateUnregistered,
		roster:  r,
		out:     out,
		metrics: metrics,
		opts:    opts,
	}
}

// ID returns the connection identifier the session is bound to.
func (s *Session) ID() string {
	return s.id
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return s.state
}

// HandleFrame decodes one inbound frame and dispatches it. Malformed frames
// and unknown events are dropped without notifying the client.
func (s *Session) HandleFrame(frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		slog.Debug("dropping frame", "conn", s.id, "err", err)
		return
	}

	switch env.Event {
	case protocol.EventRegisterUser:
		username, err := protocol.DecodeUsername(env.Data)
		if err != nil {
			slog.Debug("dropping register event", "conn", s.id, "err", err)
			return
		}
		s.Register(username)
	case protocol.EventChatMessage:
		s.ChatMessage(env.Data)
	default:
		slog.Debug("dropping unknown event", "conn", s.id, "event", env.Event)
	}
}

// Register adds the connection to the roster under username and announces
// the new roster. A second registration renames the existing entry in place.
func (s *Session) Register(username string) {
	switch s.state {
	case StateClosed:
		return
	case StateRegistered:
		if _, ok := s.roster.Rename(s.id, username); !ok {
			return
		}
		slog.Info("user renamed", "conn", s.id, "username", username)
	default:
		if _, err := s.roster.Register(s.id, username); err != nil {
			slog.Error("register failed", "conn", s.id, "err", err)
			return
		}
		s.state = StateRegistered
		slog.Info("user registered", "conn", s.id, "username", username)
	}

	s.metrics.Registrations.Add(1)
	s.out.BroadcastRoster(s.roster)
}

// ChatMessage validates a chat message payload and relays it, byte for byte,
// to every connection including this one. Invalid messages are dropped.
func (s *Session) ChatMessage(data []byte) {
	if s.state == StateClosed {
		return
	}
	if s.opts.RequireRegistration && s.state != StateRegistered {
		s.drop("sender not registered", nil)
		return
	}

	msg, err := protocol.DecodeChatMessage(data)
	if err != nil {
		s.drop("malformed chat message", err)
		return
	}
	if err := msg.Validate(); err != nil {
		s.drop("invalid chat message", err)
		return
	}

	if msg.Type == protocol.MessageTypeImage {
		s.metrics.ImageBytesRelayed.Add(int64(len(msg.ImageData)))
		slog.Debug("image message received", "conn", s.id, "size_kb", len(msg.ImageData)/1024)
	} else {
		slog.Debug("text message received", "conn", s.id, "bytes", len(msg.Text))
	}

	s.metrics.ChatMessagesRelayed.Add(1)
	s.out.BroadcastAll(protocol.EventChatMessage, json.RawMessage(data))
}

// Close retires the session. If the connection was registered its roster
// entry is removed and the remaining roster is announced. Close is idempotent.
func (s *Session) Close() {
	if s.state == StateClosed {
		return
	}
	s.state = StateClosed
	s.metrics.Disconnects.Add(1)

	user, ok := s.roster.Remove(s.id)
	if !ok {
		return
	}
	slog.Info("user left", "conn", s.id, "username", user.Username)
	s.out.BroadcastRoster(s.roster)
}

func (s *Session) drop(reason string, err error) {
	s.metrics.ChatMessagesDropped.Add(1)
	slog.Debug("dropping chat message", "conn", s.id, "reason", reason, "err", err)
}
