package signaling

import "encoding/json"

// Message types for the signaling protocol.
const (
	TypeRegister   = "register"
	TypeRegistered = "registered"
	TypeOffer      = "offer"
	TypeAnswer     = "answer"
	TypeCandidate  = "candidate"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

// Roles distinguish the stream source from the sink.
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
)

// Message is the envelope for all signaling traffic.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role,omitempty"`
	From    string          `json:"from,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Msg     string          `json:"message,omitempty"`
}
