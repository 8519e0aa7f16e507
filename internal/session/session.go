package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"eptp/internal/crypto"
	"eptp/internal/domain"
	"eptp/internal/util/memzero"
)

// DefaultKeepaliveInterval is the ping cadence while the channel is open.
const DefaultKeepaliveInterval = 10 * time.Second

var (
	// ErrNotSecured is returned when sending before the key exchange has
	// completed or after the channel closed. There is no outbound queue;
	// the caller must re-establish the connection first.
	ErrNotSecured = errors.New("session not secured")
)

// Session is one end of a secured conversation over one peer channel.
type Session struct {
	self    domain.UserID
	partner domain.UserID
	chatID  domain.ChatID
	ch      domain.Channel
	store   domain.MessageStore

	keepaliveInterval time.Duration

	mu            sync.Mutex
	priv          domain.X25519Private
	key           []byte
	secured       bool
	partnerOnline bool
	pending       []domain.Message
	securedCh     chan struct{}
	keepaliveStop chan struct{}

	closeOnce sync.Once
	done      chan struct{}

	onMessage func(domain.Message)
	onClosed  func(error)
}

// New prepares a session between self and partner over ch, persisting
// through store. Call Start to begin the key exchange.
func New(self, partner domain.UserID, ch domain.Channel, store domain.MessageStore) *Session {
	return &Session{
		self:              self,
		partner:           partner,
		chatID:            domain.CanonicalChatID(self, partner),
		ch:                ch,
		store:             store,
		keepaliveInterval: DefaultKeepaliveInterval,
		securedCh:         make(chan struct{}),
		done:              make(chan struct{}),
	}
}

// SetKeepaliveInterval overrides the ping cadence. Call before Start.
func (s *Session) SetKeepaliveInterval(d time.Duration) { s.keepaliveInterval = d }

// OnMessage registers the active-conversation sink. Messages from the
// partner are handed to it after persistence; without a sink they are
// recorded as pending notifications instead.
func (s *Session) OnMessage(fn func(domain.Message)) {
	s.mu.Lock()
	s.onMessage = fn
	s.mu.Unlock()
}

// OnClosed registers the callback fired once when the channel dies.
func (s *Session) OnClosed(fn func(error)) {
	s.mu.Lock()
	s.onClosed = fn
	s.mu.Unlock()
}

// Start generates this side's ephemeral key pair, offers it to the partner,
// and begins processing inbound frames. The private key is held in the
// session record until the reciprocal key arrives. The key offer is sent
// asynchronously: the channel may be fully synchronous, and the partner has
// no reader until its own Start runs, so a blocking send here could wedge
// both sides before either read loop exists.
func (s *Session) Start() error {
	priv, pub, err := crypto.GenerateSessionKeyPair()
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.priv = priv
	s.mu.Unlock()

	go s.readLoop()
	go func() {
		if err := s.ch.Send(domain.Frame{
			Type: domain.FrameKeyExchange,
			Key:  crypto.ExportPublicKey(pub),
		}); err != nil {
			s.shutdown(fmt.Errorf("send key exchange: %w", err))
		}
	}()
	return nil
}

// Secured reports whether the key exchange has completed.
func (s *Session) Secured() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.secured
}

// WaitSecured blocks until the session is secured, the channel dies, or ctx
// expires.
func (s *Session) WaitSecured(ctx context.Context) error {
	select {
	case <-s.securedCh:
		return nil
	case <-s.done:
		return ErrNotSecured
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PartnerOnline reports optimistic partner presence: set by any pong,
// cleared only when the channel itself dies.
func (s *Session) PartnerOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partnerOnline
}

// Pending drains messages that arrived without an active conversation sink.
func (s *Session) Pending() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// SendText encrypts and sends one text message, persisting it as sent.
func (s *Session) SendText(text string) (domain.Message, error) {
	return s.send(domain.MessageText, text)
}

// SendImage encrypts and sends one image payload (base64 data).
func (s *Session) SendImage(data string) (domain.Message, error) {
	return s.send(domain.MessageImage, data)
}

func (s *Session) send(typ domain.MessageType, payload string) (domain.Message, error) {
	s.mu.Lock()
	if !s.secured {
		s.mu.Unlock()
		return domain.Message{}, ErrNotSecured
	}
	key := s.key
	s.mu.Unlock()

	msg := domain.Message{
		ID:        uuid.NewString(),
		ChatID:    s.chatID,
		From:      s.self,
		To:        s.partner,
		Timestamp: time.Now().UnixMilli(),
		Type:      typ,
		Payload:   payload,
		Status:    domain.StatusSent,
	}
	plaintext, err := json.Marshal(msg)
	if err != nil {
		return domain.Message{}, err
	}
	nonce, ct, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return domain.Message{}, err
	}
	if err := s.ch.Send(domain.Frame{IV: nonce, Ciphertext: ct}); err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	if err := s.store.Append(msg); err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// MarkDisplayed acknowledges that a received message was shown in the
// active conversation, sending the read receipt back to its author.
func (s *Session) MarkDisplayed(msg domain.Message) error {
	s.mu.Lock()
	secured := s.secured
	s.mu.Unlock()
	if !secured {
		return ErrNotSecured
	}
	return s.ch.Send(domain.Frame{Type: domain.FrameReadReceipt, MessageID: msg.ID})
}

// Close tears down the session and its keepalive. Idempotent.
func (s *Session) Close() {
	s.shutdown(nil)
}

func (s *Session) shutdown(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.secured = false
		s.partnerOnline = false
		if s.keepaliveStop != nil {
			close(s.keepaliveStop)
			s.keepaliveStop = nil
		}
		memzero.Zero(s.key)
		s.key = nil
		memzero.Zero(s.priv[:])
		cb := s.onClosed
		s.mu.Unlock()

		_ = s.ch.Close()
		close(s.done)
		if cb != nil && err != nil {
			cb(err)
		}
	})
}

func (s *Session) readLoop() {
	for {
		f, err := s.ch.Recv()
		if err != nil {
			s.shutdown(err)
			return
		}
		s.handleFrame(f)
	}
}

func (s *Session) handleFrame(f domain.Frame) {
	switch {
	case f.Type == domain.FrameKeyExchange:
		s.completeKeyExchange(f.Key)

	case f.Type == domain.FramePing:
		_ = s.ch.Send(domain.Frame{Type: domain.FramePong})

	case f.Type == domain.FramePong:
		s.mu.Lock()
		s.partnerOnline = true
		s.mu.Unlock()

	case f.Type == domain.FrameReadReceipt:
		if f.MessageID != "" {
			_ = s.store.MarkRead(s.chatID, f.MessageID)
		}

	case f.Encrypted():
		s.receiveEncrypted(f)
	}
}

func (s *Session) completeKeyExchange(exported string) {
	pub, err := crypto.ImportPublicKey(exported)
	if err != nil {
		return
	}
	s.mu.Lock()
	if s.secured {
		s.mu.Unlock() // duplicate key_exchange; first one wins
		return
	}
	key, err := crypto.DeriveSessionKey(s.priv, pub)
	if err != nil {
		s.mu.Unlock()
		return
	}
	memzero.Zero(s.priv[:])
	s.key = key
	s.secured = true
	s.keepaliveStop = make(chan struct{})
	stop := s.keepaliveStop
	s.mu.Unlock()

	close(s.securedCh)
	go s.keepalive(stop)
}

// keepalive pings on a fixed cadence while the channel is open. The task is
// owned by the session and stops with it; it never outlives a reconnect.
func (s *Session) keepalive(stop chan struct{}) {
	ticker := time.NewTicker(s.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.ch.Send(domain.Frame{Type: domain.FramePing}); err != nil {
				return
			}
		case <-stop:
			return
		case <-s.done:
			return
		}
	}
}

func (s *Session) receiveEncrypted(f domain.Frame) {
	s.mu.Lock()
	key := s.key
	secured := s.secured
	s.mu.Unlock()
	if !secured {
		return
	}

	plaintext, err := crypto.Decrypt(f.IV, f.Ciphertext, key)
	if err != nil {
		// Corrupted or forged frame: drop it, keep the session.
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(plaintext, &msg); err != nil {
		return
	}
	if msg.From != s.partner || msg.To != s.self {
		return
	}
	msg.ChatID = s.chatID
	msg.Status = domain.StatusDeliv
	if err := s.store.Append(msg); err != nil {
		return
	}

	s.mu.Lock()
	sink := s.onMessage
	if sink == nil {
		s.pending = append(s.pending, msg)
	}
	s.mu.Unlock()
	if sink != nil {
		sink(msg)
	}
}
