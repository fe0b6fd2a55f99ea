package models

import (
	"encoding/json"
	"time"
)

// Event names exchanged over the real-time channel.
const (
	EventJoin           = "join"
	EventSendMessage    = "send message"
	EventGetLastMessage = "get last message"

	EventLoadMessages = "load messages"
	EventMessages     = "messages"
	EventLastMessage  = "last message"
	EventError        = "error"
)

// ChatMessage is the decrypted form of a Message as seen by clients.
type ChatMessage struct {
	ID         uint64    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Plaintext  string    `json:"plaintext"`
	ReplyTo    *uint64   `json:"replyTo,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Event is a single frame on the WebSocket: an event name plus its payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data once so the same frame can be handed to many clients.
func NewEvent(name string, data any) (Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Event{}, err
	}
	return Event{Event: name, Data: raw}, nil
}

// PairRequest is the payload of "join" and "get last message".
type PairRequest struct {
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
}

// SendRequest is the payload of "send message".
type SendRequest struct {
	SenderID   string  `json:"senderId"`
	ReceiverID string  `json:"receiverId"`
	Plaintext  string  `json:"plaintext"`
	ReplyTo    *uint64 `json:"replyTo,omitempty"`
}

// ErrorNotice is sent privately to a connection when one of its requests fails.
type ErrorNotice struct {
	Event      string   `json:"event"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	MessageIDs []uint64 `json:"messageIds,omitempty"`
}
