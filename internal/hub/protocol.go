package hub

import "encoding/json"

// Message types on the push channel.
const (
	TypeNewCall = "new_call"
	TypePing    = "ping"
	TypePong    = "pong"
)

// Message is the envelope for every push channel frame.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var pongFrame = mustMarshal(Message{Type: TypePong})

func mustMarshal(m Message) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}
