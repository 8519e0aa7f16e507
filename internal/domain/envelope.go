package domain

import "encoding/json"

// Signaling envelope types carried over the relay socket.
const (
	EnvRegister      = "register"
	EnvStartChat     = "start_chat"
	EnvIncomingChat  = "incoming_chat"
	EnvOffer         = "offer"
	EnvAnswer        = "answer"
	EnvICECandidate  = "ice-candidate"
	EnvPushSubscribe = "push_subscribe"
)

// Envelope is the JSON message exchanged with the signaling relay. The relay
// inspects Type and To only; negotiation payloads are opaque to it.
type Envelope struct {
	Type    string          `json:"type"`
	UserID  UserID          `json:"userId,omitempty"` // register, push_subscribe
	From    UserID          `json:"from,omitempty"`
	To      UserID          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
