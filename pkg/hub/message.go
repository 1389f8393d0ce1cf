// Package hub fans dashboard updates out to websocket clients using a
// channel-based broadcast loop.
package hub

import "encoding/json"

// Message is a pre-encoded JSON frame to be broadcast to clients.
type Message struct {
	Data []byte
}

// NewJSONMessage creates a message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// Event is the envelope for everything sent to dashboard clients.
type Event struct {
	Type string      `json:"type"` // "status", "result", "failure", "devices"
	Data interface{} `json:"data,omitempty"`
}

// Encode marshals the event into a Message.
func (e Event) Encode() (Message, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(data), nil
}
