// Package protocol defines the JSON events exchanged over the chat websocket.
// Both the server hub and the client connection manager speak this shape.
package protocol

import (
	"encoding/json"
	"time"
)

// Event names. The transport is not scoped to one conversation: every event
// on a connection reaches every handler, and filtering is the receiver's job.
const (
	EventJoin    = "join"
	EventLeave   = "leave"
	EventMessage = "chatMessage"
)

// Envelope wraps every frame on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Encode builds a wire frame for the given event and payload.
func Encode(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// Decode unmarshals the envelope payload into v.
func (e *Envelope) Decode(v any) error {
	return json.Unmarshal(e.Data, v)
}

// Room is the payload of join and leave events: the unordered pair of users
// whose conversation the sender wants live events for.
type Room struct {
	Username  string `json:"username"`
	OtherUser string `json:"otherUser"`
}

// ChatMessage is a direct message, both as sent by a client and as echoed by
// the server to every member of the room (sender included). ID is assigned
// by the server on persist and is empty on optimistic local echoes.
type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Body      string    `json:"msg"`
	Timestamp time.Time `json:"timestamp"`
}

// PairKey returns the canonical identifier of the conversation between a and
// b: the two names sorted and joined, so both participants derive the same
// key regardless of direction.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

// Matches reports whether the message belongs to the conversation between
// user and peer, in either direction.
func (m *ChatMessage) Matches(user, peer string) bool {
	return (m.From == peer && m.To == user) || (m.From == user && m.To == peer)
}
