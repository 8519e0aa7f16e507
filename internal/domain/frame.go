package domain

// Data-channel frame types. Frames travel end-to-end once the peer channel
// is up and never touch the relay.
const (
	FrameHello       = "hello"
	FrameKeyExchange = "key_exchange"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameReadReceipt = "read_receipt"
)

// Frame is one JSON frame on the peer data channel. A frame carrying
// IV/Ciphertext and no Type is an encrypted application message; everything
// else is plaintext protocol chatter (key exchange, keepalive, receipts).
type Frame struct {
	Type      string `json:"type,omitempty"`
	From      UserID `json:"from,omitempty"`      // hello
	Token     string `json:"token,omitempty"`     // hello: echoes the offer token
	Key       string `json:"key,omitempty"`       // key_exchange: exported public key
	MessageID string `json:"messageId,omitempty"` // read_receipt

	IV         []byte `json:"iv,omitempty"`
	Ciphertext []byte `json:"ciphertext,omitempty"`
}

// Encrypted reports whether the frame carries an encrypted payload.
func (f Frame) Encrypted() bool { return len(f.Ciphertext) > 0 }
