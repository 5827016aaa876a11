package signaling

import "encoding/json"

// Message types for the signaling protocol.
const (
	TypeRegister  = "register"
	TypeOpen      = "open"
	TypeOffer     = "offer"
	TypeAnswer    = "answer"
	TypeCandidate = "candidate"
	TypeLeave     = "leave"
	TypePing      = "ping"
	TypePong      = "pong"
	TypeError     = "error"
)

// Error codes carried by TypeError messages.
const (
	CodeIDTaken         = "id-taken"
	CodePeerUnavailable = "peer-unavailable"
	CodeIncompatible    = "incompatible"
	CodeServerError     = "server-error"
)

// Message is the envelope for all signaling messages. Routed messages
// (offer, answer, candidate, leave) carry From on delivery and Target on send.
type Message struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	From    string          `json:"from,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Code    string          `json:"code,omitempty"`
	Msg     string          `json:"message,omitempty"`
}
