// Package protocol defines the named-event JSON frames exchanged between chat
// clients and the relay.
//
// Every WebSocket text frame carries exactly one event:
//
//	{"event": "chat message", "data": {...}}
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Event names used on the wire.
const (
	EventRegisterUser = "register user"
	EventChatMessage  = "chat message"
	EventUserList     = "user list"
)

// ErrMalformedFrame is returned when a frame is not a JSON event envelope.
var ErrMalformedFrame = errors.New("malformed frame")

// Envelope is a single named event. Data is kept as raw JSON so payloads can
// be relayed without being re-encoded.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Decode parses a raw frame into an Envelope.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformedFrame)
	}
	return env, nil
}

// Encode builds a frame for event. A json.RawMessage payload is copied into
// the frame byte for byte; json.Marshal would compact and HTML-escape it.
func Encode(event string, payload any) ([]byte, error) {
	data, ok := payload.(json.RawMessage)
	if !ok {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %q payload: %w", event, err)
		}
	}

	name, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("encode event name: %w", err)
	}

	frame := make([]byte, 0, len(name)+len(data)+len(`{"event":,"data":}`))
	frame = append(frame, `{"event":`...)
	frame = append(frame, name...)
	if len(data) > 0 {
		frame = append(frame, `,"data":`...)
		frame = append(frame, data...)
	}
	frame = append(frame, '}')
	return frame, nil
}

// DecodeUsername extracts the display name carried by a register event.
// A missing or null payload yields the empty string.
func DecodeUsername(data json.RawMessage) (string, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", nil
	}
	var username string
	if err := json.Unmarshal(data, &username); err != nil {
		return "", fmt.Errorf("%w: username must be a string", ErrMalformedFrame)
	}
	return username, nil
}
