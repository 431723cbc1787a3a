package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType distinguishes text and inline-image chat messages.
type MessageType string

// Supported message types.
const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
)

// ImageDataPrefix marks an embedded image payload (a data URL).
const ImageDataPrefix = "data:image/"

var (
	// ErrInvalidImage is returned for image messages without a data:image/ payload.
	ErrInvalidImage = errors.New("invalid image data")
	// ErrUnknownType is returned for messages that are neither text nor image.
	ErrUnknownType = errors.New("unknown message type")
)

// ChatMessage is the payload of a chat message event. The metadata fields are
// supplied by the sender, never checked, and may hold any JSON value.
type ChatMessage struct {
	ID        any         `json:"id,omitempty"`
	UserID    any         `json:"userId,omitempty"`
	Username  any         `json:"username,omitempty"`
	Timestamp any         `json:"timestamp,omitempty"`
	Type      MessageType `json:"type"`
	Text      string      `json:"text,omitempty"`
	ImageData string      `json:"imageData,omitempty"`
}

// wireChatMessage accepts any JSON type in every field so that an
// unexpected value never fails the whole decode.
type wireChatMessage struct {
	ID        any             `json:"id"`
	UserID    any             `json:"userId"`
	Username  any             `json:"username"`
	Timestamp any             `json:"timestamp"`
	Type      json.RawMessage `json:"type"`
	Text      json.RawMessage `json:"text"`
	ImageData json.RawMessage `json:"imageData"`
}

// DecodeChatMessage parses the data of a chat message event. Strings, numbers
// and arrays are malformed. Type, text and imageData read as
// empty when they are not strings. Numbers in metadata decode as json.Number.
func DecodeChatMessage(data json.RawMessage) (ChatMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var wire wireChatMessage
	if err := dec.Decode(&wire); err != nil {
		return ChatMessage{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return ChatMessage{
		ID:        wire.ID,
		UserID:    wire.UserID,
		Username:  wire.Username,
		Timestamp: wire.Timestamp,
		Type:      MessageType(stringField(wire.Type)),
		Text:      stringField(wire.Text),
		ImageData: stringField(wire.ImageData),
	}, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Validate reports whether the message may be relayed.
func (m ChatMessage) Validate() error {
	switch m.Type {
	case MessageTypeText:
		return nil
	case MessageTypeImage:
		if !IsImageData(m.ImageData) {
			return ErrInvalidImage
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownType, m.Type)
	}
}

// IsImageData reports whether s is a non-empty data URL of an image.
func IsImageData(s string) bool {
	return strings.HasPrefix(s, ImageDataPrefix)
}
