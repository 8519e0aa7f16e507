package domain

// MessageType discriminates application message payloads.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageImage       MessageType = "image"
	MessageReadReceipt MessageType = "read_receipt"
	MessagePing        MessageType = "ping"
	MessagePong        MessageType = "pong"
)

// MessageStatus tracks a sent message through delivery.
type MessageStatus string

const (
	StatusSending MessageStatus = "sending"
	StatusSent    MessageStatus = "sent"
	StatusDeliv   MessageStatus = "delivered"
	StatusRead    MessageStatus = "read"
)

// Message is one chat message. Created by the sender with StatusSent;
// only a read receipt may later move it to StatusRead.
type Message struct {
	ID        string        `json:"id"`
	ChatID    ChatID        `json:"chatId"`
	From      UserID        `json:"from"`
	To        UserID        `json:"to"`
	Timestamp int64         `json:"timestamp"` // unix milliseconds
	Type      MessageType   `json:"type"`
	Payload   string        `json:"payload"` // text body, or base64 image data
	Status    MessageStatus `json:"status"`
}

// Contact is a UI projection rebuilt from message flow; never authoritative.
type Contact struct {
	ID              UserID `json:"id"`
	Name            string `json:"name"`
	LastMessage     string `json:"lastMessage,omitempty"`
	LastMessageTime int64  `json:"lastMessageTime,omitempty"`
}

// Credentials is the locally persisted login used for silent re-login.
type Credentials struct {
	UserID       UserID `json:"userId"`
	SecretPhrase string `json:"secretPhrase"`
}
