package peer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"eptp/internal/domain"
)

// State is the orchestrator's connection-attempt state.
type State string

const (
	StateIdle        State = "idle"
	StateNegotiating State = "negotiating"
	StateConnected   State = "connected"
	StateFailed      State = "failed"
	StateClosed      State = "closed"
)

// Role is the side taken in one negotiation.
type Role string

const (
	RoleOfferer  Role = "offerer"
	RoleAnswerer Role = "answerer"
)

const (
	negotiationTimeout = 30 * time.Second
	helloTimeout       = 5 * time.Second
)

// ErrNegotiationCanceled reports a negotiation superseded or torn down
// before the transport came up.
var ErrNegotiationCanceled = errors.New("negotiation canceled")

// Negotiation payloads carried opaquely through the relay.
type offerPayload struct {
	Token string `json:"token"`
}

type answerPayload struct {
	Token string `json:"token"`
}

type candidatePayload struct {
	Addr string `json:"addr"`
}

// negotiation is the per-attempt context record. Ephemeral negotiation
// state (tokens, the answerer's dial queue) lives here, keyed by partner,
// never on the transport object.
type negotiation struct {
	partner    domain.UserID
	role       Role
	token      string // offerer: ours to verify hellos; answerer: echoed back
	listener   domain.Listener
	ready      chan struct{} // answerer: closed once the app has settled
	candidates chan string
	ctx        context.Context
	cancel     context.CancelFunc
}

// Orchestrator owns the connection to exactly one partner at a time. All
// state transitions are serialised behind one mutex; signaling receipt,
// transport events, and teardown all funnel through it.
type Orchestrator struct {
	self      domain.UserID
	sig       domain.Signaler
	transport domain.Transport

	mu      sync.Mutex
	state   State
	partner domain.UserID
	neg     *negotiation
	ch      domain.Channel
	lastErr error

	onIncoming func(domain.UserID)
	onState    func(domain.UserID, State)
	onChannel  func(domain.UserID, domain.Channel)
}

// New returns an idle orchestrator for self.
func New(self domain.UserID, sig domain.Signaler, transport domain.Transport) *Orchestrator {
	return &Orchestrator{self: self, sig: sig, transport: transport, state: StateIdle}
}

// OnIncoming registers the callback fired when a remote partner requests a
// chat. Offer processing is deferred until the callback returns, giving the
// app time to settle (route to the chat view, load history).
func (o *Orchestrator) OnIncoming(fn func(partner domain.UserID)) {
	o.mu.Lock()
	o.onIncoming = fn
	o.mu.Unlock()
}

// OnState registers the connection-state callback.
func (o *Orchestrator) OnState(fn func(partner domain.UserID, s State)) {
	o.mu.Lock()
	o.onState = fn
	o.mu.Unlock()
}

// OnChannel registers the callback fired once the channel is ready to carry
// encrypted application data.
func (o *Orchestrator) OnChannel(fn func(partner domain.UserID, ch domain.Channel)) {
	o.mu.Lock()
	o.onChannel = fn
	o.mu.Unlock()
}

// State returns the current connection state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Partner returns the user the current attempt or connection is for.
func (o *Orchestrator) Partner() domain.UserID {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.partner
}

// Err returns the error behind the most recent failed state, if any.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Connect starts a chat toward partner as the offerer: it asks the relay to
// notify the partner, listens for the peer channel, and advertises
// candidate addresses. Any in-flight attempt toward a different partner is
// torn down first. Calling Connect for the current partner while already
// negotiating or connected is a no-op.
func (o *Orchestrator) Connect(ctx context.Context, partner domain.UserID) error {
	o.mu.Lock()
	if o.partner == partner && (o.state == StateNegotiating || o.state == StateConnected) {
		o.mu.Unlock()
		return nil
	}
	o.teardownLocked()

	negCtx, cancel := context.WithTimeout(ctx, negotiationTimeout)
	neg := &negotiation{
		partner: partner,
		role:    RoleOfferer,
		token:   uuid.NewString(),
		ctx:     negCtx,
		cancel:  cancel,
	}
	o.neg = neg
	o.partner = partner
	o.state = StateNegotiating
	cb := o.onState
	o.mu.Unlock()
	if cb != nil {
		cb(partner, StateNegotiating)
	}

	if err := o.sig.Send(negCtx, domain.Envelope{
		Type: domain.EnvStartChat, From: o.self, To: partner,
	}); err != nil {
		if o.superseded(neg, partner) {
			return nil
		}
		o.fail(neg, err)
		return err
	}

	ln, err := o.transport.Listen(negCtx)
	if err != nil {
		if o.superseded(neg, partner) {
			return nil
		}
		o.fail(neg, err)
		return err
	}
	o.mu.Lock()
	if o.neg != neg {
		same := o.partner == partner && o.state != StateIdle && o.state != StateFailed && o.state != StateClosed
		o.mu.Unlock()
		_ = ln.Close()
		if same {
			return nil
		}
		return ErrNegotiationCanceled
	}
	neg.listener = ln
	o.mu.Unlock()

	if err := o.sendNegotiation(neg, domain.EnvOffer, offerPayload{Token: neg.token}); err != nil {
		if o.superseded(neg, partner) {
			return nil
		}
		o.fail(neg, err)
		return err
	}
	for _, addr := range ln.Addrs() {
		if err := o.sendNegotiation(neg, domain.EnvICECandidate, candidatePayload{Addr: addr}); err != nil {
			if o.superseded(neg, partner) {
				return nil
			}
			o.fail(neg, err)
			return err
		}
	}

	go o.acceptLoop(neg, ln)
	return nil
}

// superseded reports whether the attempt was displaced while still heading
// to the same partner. That happens when a simultaneous start flips this
// side to answerer; the connection is still being established, so the
// original Connect call has not failed.
func (o *Orchestrator) superseded(neg *negotiation, partner domain.UserID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.neg != neg && o.partner == partner &&
		(o.state == StateNegotiating || o.state == StateConnected)
}

// HandleEnvelope feeds one inbound signaling envelope into the state
// machine. Wire it as the signaling client's handler.
func (o *Orchestrator) HandleEnvelope(env domain.Envelope) {
	switch env.Type {
	case domain.EnvIncomingChat:
		o.handleIncomingChat(env.From)
	case domain.EnvOffer:
		var p offerPayload
		if json.Unmarshal(env.Payload, &p) != nil || env.From == "" {
			return
		}
		o.handleOffer(env.From, p.Token)
	case domain.EnvAnswer:
		// Informational: the transport accept is the real readiness signal.
	case domain.EnvICECandidate:
		var p candidatePayload
		if json.Unmarshal(env.Payload, &p) != nil || p.Addr == "" {
			return
		}
		o.handleCandidate(env.From, p.Addr)
	}
}

// Close tears down the active attempt or connection. Idempotent.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.state == StateClosed {
		o.mu.Unlock()
		return
	}
	o.teardownLocked()
	o.state = StateClosed
	partner := o.partner
	cb := o.onState
	o.mu.Unlock()
	if cb != nil {
		cb(partner, StateClosed)
	}
}

func (o *Orchestrator) handleIncomingChat(from domain.UserID) {
	o.mu.Lock()
	if from == "" {
		o.mu.Unlock()
		return
	}
	if o.partner == from && (o.state == StateNegotiating || o.state == StateConnected) {
		// Already working on this partner (or a double-start produced a
		// crossing incoming_chat). Repeated notifications are harmless.
		o.mu.Unlock()
		return
	}
	if o.state == StateNegotiating || o.state == StateConnected {
		// Busy with someone else; a remote request never yanks the active
		// conversation away.
		o.mu.Unlock()
		return
	}
	neg := o.becomeAnswererLocked(from)
	cb := o.onState
	o.mu.Unlock()
	if cb != nil {
		cb(from, StateNegotiating)
	}
	o.settleThenReady(neg)
}

func (o *Orchestrator) handleOffer(from domain.UserID, token string) {
	o.mu.Lock()
	if o.state == StateConnected {
		// A live channel wins over any offer, including a stale crossed one
		// from a double-start. A partner that really lost its end reconnects
		// after we observe the close and go back to idle.
		o.mu.Unlock()
		return
	}
	neg := o.neg

	switch {
	case o.state == StateNegotiating && neg != nil && neg.partner == from && neg.role == RoleAnswerer:
		if neg.token != "" {
			o.mu.Unlock() // duplicate offer
			return
		}
		neg.token = token
		o.mu.Unlock()
		o.startAnswer(neg)

	case o.state == StateNegotiating && neg != nil && neg.partner == from && neg.role == RoleOfferer:
		// Both sides started simultaneously and each believes itself the
		// offerer. Deterministic tie-break: the smaller user ID keeps the
		// offerer role, the larger yields and answers.
		if o.self < from {
			o.mu.Unlock()
			return
		}
		o.teardownLocked()
		flipped := o.becomeAnswererLocked(from)
		close(flipped.ready) // user initiated this chat; the app is settled
		flipped.token = token
		o.mu.Unlock()
		o.startAnswer(flipped)

	case o.state == StateNegotiating:
		o.mu.Unlock() // busy with another partner
		return

	default:
		// Offer with no matching negotiation: the incoming_chat was missed
		// (push wake path). Synthesize the answerer state and defer the
		// offer until the app has settled.
		synth := o.becomeAnswererLocked(from)
		synth.token = token
		cb := o.onState
		o.mu.Unlock()
		if cb != nil {
			cb(from, StateNegotiating)
		}
		o.settleThenReady(synth)
		o.startAnswer(synth)
	}
}

func (o *Orchestrator) handleCandidate(from domain.UserID, addr string) {
	o.mu.Lock()
	neg := o.neg
	if neg == nil || neg.partner != from || neg.role != RoleAnswerer {
		o.mu.Unlock()
		return
	}
	o.mu.Unlock()
	select {
	case neg.candidates <- addr:
	default: // queue full; negotiation is already saturated with candidates
	}
}

// becomeAnswererLocked installs a fresh answerer negotiation for partner.
func (o *Orchestrator) becomeAnswererLocked(partner domain.UserID) *negotiation {
	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	neg := &negotiation{
		partner:    partner,
		role:       RoleAnswerer,
		ready:      make(chan struct{}),
		candidates: make(chan string, 16),
		ctx:        ctx,
		cancel:     cancel,
	}
	o.neg = neg
	o.partner = partner
	o.state = StateNegotiating
	return neg
}

// settleThenReady runs the incoming-chat callback off the lock and then
// releases the negotiation's readiness gate.
func (o *Orchestrator) settleThenReady(neg *negotiation) {
	o.mu.Lock()
	cb := o.onIncoming
	o.mu.Unlock()
	go func() {
		if cb != nil {
			cb(neg.partner)
		}
		close(neg.ready)
	}()
}

// startAnswer waits for the readiness gate, replies to the offer, and dials
// candidates until one connects.
func (o *Orchestrator) startAnswer(neg *negotiation) {
	go func() {
		select {
		case <-neg.ready:
		case <-neg.ctx.Done():
			o.fail(neg, neg.ctx.Err())
			return
		}
		if err := o.sendNegotiation(neg, domain.EnvAnswer, answerPayload{Token: neg.token}); err != nil {
			o.fail(neg, err)
			return
		}
		for {
			select {
			case addr := <-neg.candidates:
				ch, err := o.transport.Dial(neg.ctx, addr)
				if err != nil {
					continue
				}
				if err := ch.Send(domain.Frame{Type: domain.FrameHello, From: o.self, Token: neg.token}); err != nil {
					_ = ch.Close()
					continue
				}
				o.established(neg, ch)
				return
			case <-neg.ctx.Done():
				o.fail(neg, neg.ctx.Err())
				return
			}
		}
	}()
}

// acceptLoop admits inbound channels until one presents a hello that
// matches this negotiation.
func (o *Orchestrator) acceptLoop(neg *negotiation, ln domain.Listener) {
	for {
		ch, err := ln.Accept(neg.ctx)
		if err != nil {
			o.fail(neg, err)
			return
		}
		hello, err := recvWithTimeout(ch, helloTimeout)
		if err != nil || hello.Type != domain.FrameHello ||
			hello.Token != neg.token || hello.From != neg.partner {
			_ = ch.Close()
			continue
		}
		o.established(neg, ch)
		return
	}
}

// established promotes a negotiation to connected and hands the channel out.
func (o *Orchestrator) established(neg *negotiation, ch domain.Channel) {
	o.mu.Lock()
	if o.neg != neg {
		o.mu.Unlock()
		_ = ch.Close()
		return
	}
	if neg.listener != nil {
		_ = neg.listener.Close()
		neg.listener = nil
	}
	neg.cancel()
	o.ch = ch
	o.state = StateConnected
	o.lastErr = nil
	partner, stateCB, chanCB := o.partner, o.onState, o.onChannel
	o.mu.Unlock()

	if stateCB != nil {
		stateCB(partner, StateConnected)
	}
	if chanCB != nil {
		chanCB(partner, ch)
	}
}

// fail reports a transport error for the given attempt. The caller is
// responsible for retrying from scratch; nothing is retried here.
func (o *Orchestrator) fail(neg *negotiation, err error) {
	o.mu.Lock()
	if o.neg != neg {
		o.mu.Unlock() // superseded by a newer attempt or teardown
		return
	}
	o.teardownLocked()
	o.state = StateFailed
	o.lastErr = err
	partner := o.partner
	cb := o.onState
	o.mu.Unlock()
	if cb != nil {
		cb(partner, StateFailed)
	}
}

// teardownLocked releases every transport resource of the current attempt.
func (o *Orchestrator) teardownLocked() {
	if o.neg != nil {
		o.neg.cancel()
		if o.neg.listener != nil {
			_ = o.neg.listener.Close()
		}
		o.neg = nil
	}
	if o.ch != nil {
		_ = o.ch.Close()
		o.ch = nil
	}
}

// sendNegotiation posts one negotiation envelope to the partner via the relay.
func (o *Orchestrator) sendNegotiation(neg *negotiation, typ string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return o.sig.Send(neg.ctx, domain.Envelope{
		Type: typ, From: o.self, To: neg.partner, Payload: raw,
	})
}

// recvWithTimeout reads one frame, closing the channel if it takes too long.
func recvWithTimeout(ch domain.Channel, d time.Duration) (domain.Frame, error) {
	type result struct {
		f   domain.Frame
		err error
	}
	res := make(chan result, 1)
	go func() {
		f, err := ch.Recv()
		res <- result{f, err}
	}()
	select {
	case r := <-res:
		return r.f, r.err
	case <-time.After(d):
		_ = ch.Close()
		return domain.Frame{}, context.DeadlineExceeded
	}
}
