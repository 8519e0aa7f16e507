package domain

import "context"

// MessageStore persists chat history keyed by conversation. Implementations
// append and mark-read only; past messages are otherwise immutable.
type MessageStore interface {
	Append(msg Message) error
	History(chatID ChatID) ([]Message, error)
	// MarkRead flips the matching message to StatusRead. Unknown IDs are not
	// an error: receipts may reference messages from an older install.
	MarkRead(chatID ChatID, messageID string) error
	// Contacts projects the latest message per conversation for self.
	Contacts(self UserID) ([]Contact, error)
}

// CredentialStore persists the local login for silent re-login.
type CredentialStore interface {
	SaveCredentials(creds Credentials) error
	LoadCredentials() (Credentials, bool, error)
}

// Signaler is a live session with the signaling relay.
type Signaler interface {
	Send(ctx context.Context, env Envelope) error
	// Online reports relay liveness. Connection attempts made while offline
	// are allowed but will not succeed until signaling recovers.
	Online() bool
	Close() error
}

// Channel is an ordered, reliable, bidirectional frame stream between peers.
type Channel interface {
	Send(f Frame) error
	Recv() (Frame, error)
	Close() error
}

// Listener awaits an inbound peer channel on one or more candidate addresses.
type Listener interface {
	Addrs() []string
	Accept(ctx context.Context) (Channel, error)
	Close() error
}

// Transport establishes peer channels. The offerer listens and advertises
// candidates over signaling; the answerer dials them.
type Transport interface {
	Listen(ctx context.Context) (Listener, error)
	Dial(ctx context.Context, addr string) (Channel, error)
}
