package peer_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eptp/internal/domain"
	"eptp/internal/peer"
)

// memHub stands in for the signaling relay: start_chat becomes
// incoming_chat at the target, everything else with a To is forwarded.
// Delivery per user is serialised, matching one socket's ordering.
type memHub struct {
	mu            sync.Mutex
	inboxes       map[domain.UserID]chan domain.Envelope
	dropStartChat bool // simulate a lost incoming_chat (push wake path)
}

func newMemHub() *memHub {
	return &memHub{inboxes: make(map[domain.UserID]chan domain.Envelope)}
}

func (h *memHub) attach(id domain.UserID, handler func(domain.Envelope)) {
	inbox := make(chan domain.Envelope, 64)
	h.mu.Lock()
	h.inboxes[id] = inbox
	h.mu.Unlock()
	go func() {
		for env := range inbox {
			handler(env)
		}
	}()
}

func (h *memHub) deliver(to domain.UserID, env domain.Envelope) {
	h.mu.Lock()
	inbox, ok := h.inboxes[to]
	h.mu.Unlock()
	if ok {
		inbox <- env
	}
}

type memSignaler struct {
	hub *memHub
}

func (s *memSignaler) Send(_ context.Context, env domain.Envelope) error {
	switch env.Type {
	case domain.EnvRegister:
	case domain.EnvStartChat:
		s.hub.mu.Lock()
		drop := s.hub.dropStartChat
		s.hub.mu.Unlock()
		if !drop {
			s.hub.deliver(env.To, domain.Envelope{Type: domain.EnvIncomingChat, From: env.From})
		}
	default:
		if env.To != "" {
			s.hub.deliver(env.To, env)
		}
	}
	return nil
}

func (s *memSignaler) Online() bool { return true }
func (s *memSignaler) Close() error { return nil }

type node struct {
	id       domain.UserID
	orch     *peer.Orchestrator
	states   chan peer.State
	channels chan domain.Channel
	incoming chan domain.UserID
}

func newNode(hub *memHub, netw *peer.MemNetwork, id domain.UserID) *node {
	n := &node{
		id:       id,
		states:   make(chan peer.State, 16),
		channels: make(chan domain.Channel, 4),
		incoming: make(chan domain.UserID, 4),
	}
	n.orch = peer.New(id, &memSignaler{hub: hub}, netw.Transport())
	n.orch.OnState(func(_ domain.UserID, s peer.State) { n.states <- s })
	n.orch.OnChannel(func(_ domain.UserID, ch domain.Channel) { n.channels <- ch })
	n.orch.OnIncoming(func(p domain.UserID) { n.incoming <- p })
	hub.attach(id, n.orch.HandleEnvelope)
	return n
}

func (n *node) waitState(t *testing.T, want peer.State) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case s := <-n.states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for state %q (now %q)", n.id, want, n.orch.State())
		}
	}
}

func (n *node) waitChannel(t *testing.T) domain.Channel {
	t.Helper()
	select {
	case ch := <-n.channels:
		return ch
	case <-time.After(5 * time.Second):
		t.Fatalf("%s: timed out waiting for channel", n.id)
		return nil
	}
}

// exchangeFrame sends one frame from one end and asserts it arrives at the
// other. The receive runs on its own goroutine: the channel may be fully
// synchronous, so a send only completes once the far end is reading.
func exchangeFrame(t *testing.T, from, to domain.Channel, typ string) {
	t.Helper()
	got := make(chan domain.Frame, 1)
	errc := make(chan error, 1)
	go func() {
		f, err := to.Recv()
		if err != nil {
			errc <- err
			return
		}
		got <- f
	}()
	require.NoError(t, from.Send(domain.Frame{Type: typ}))
	select {
	case f := <-got:
		require.Equal(t, typ, f.Type)
	case err := <-errc:
		t.Fatalf("recv: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("frame %q never arrived", typ)
	}
}

func TestConnect_EstablishesChannel(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")
	bob := newNode(hub, netw, "1234567890cd")

	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))

	// Bob is asked first, then both sides converge.
	require.Equal(t, alice.id, <-bob.incoming)
	aliceCh := alice.waitChannel(t)
	bobCh := bob.waitChannel(t)
	alice.waitState(t, peer.StateConnected)
	bob.waitState(t, peer.StateConnected)

	// Frames flow across the established channel.
	exchangeFrame(t, aliceCh, bobCh, domain.FramePing)
}

func TestSimultaneousStart_ConvergesToOneChannel(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")
	bob := newNode(hub, netw, "1234567890cd")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		require.NoError(t, alice.orch.Connect(context.Background(), bob.id))
	}()
	go func() {
		defer wg.Done()
		require.NoError(t, bob.orch.Connect(context.Background(), alice.id))
	}()
	wg.Wait()

	aliceCh := alice.waitChannel(t)
	bobCh := bob.waitChannel(t)
	alice.waitState(t, peer.StateConnected)
	bob.waitState(t, peer.StateConnected)

	// Exactly one channel per side, and it is the same channel: a frame
	// sent by one end arrives at the other, in both directions.
	exchangeFrame(t, aliceCh, bobCh, domain.FramePing)
	exchangeFrame(t, bobCh, aliceCh, domain.FramePong)

	select {
	case <-alice.channels:
		t.Fatal("alice got a second channel")
	case <-bob.channels:
		t.Fatal("bob got a second channel")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnmatchedOffer_SynthesizesAnswerer(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")
	bob := newNode(hub, netw, "1234567890cd")

	// Alice's incoming_chat is lost (push wake path): bob only ever sees
	// the offer and candidates.
	hub.dropStartChat = true
	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))

	require.Equal(t, alice.id, <-bob.incoming)
	bob.waitState(t, peer.StateConnected)
	alice.waitState(t, peer.StateConnected)
}

func TestClose_Idempotent(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")
	bob := newNode(hub, netw, "1234567890cd")

	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))
	alice.waitState(t, peer.StateConnected)

	alice.orch.Close()
	require.Equal(t, peer.StateClosed, alice.orch.State())
	alice.orch.Close() // no-op
	require.Equal(t, peer.StateClosed, alice.orch.State())
}

func TestConnect_NewPartnerSupersedesOld(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")

	// ghost never answers: alice stays negotiating toward it.
	ghost := domain.UserID("0000000000gh")
	require.NoError(t, alice.orch.Connect(context.Background(), ghost))
	alice.waitState(t, peer.StateNegotiating)

	bob := newNode(hub, netw, "1234567890cd")
	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))
	require.Equal(t, bob.id, alice.orch.Partner())
	alice.waitState(t, peer.StateConnected)
	bob.waitState(t, peer.StateConnected)
}

func TestConnect_SamePartnerIsNoOp(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")
	bob := newNode(hub, netw, "1234567890cd")

	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))
	alice.waitState(t, peer.StateConnected)
	require.NoError(t, alice.orch.Connect(context.Background(), bob.id))
	require.Equal(t, peer.StateConnected, alice.orch.State())
}

func TestCallbacks_RegisteredWhileEnvelopesArrive(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	orch := peer.New("9876543210ab", &memSignaler{hub: hub}, netw.Transport())
	defer orch.Close()

	// Envelope delivery can begin before the app has registered its
	// callbacks; registration must be safe against concurrent handling.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			orch.HandleEnvelope(domain.Envelope{Type: domain.EnvIncomingChat, From: "1234567890cd"})
		}
	}()
	for i := 0; i < 100; i++ {
		orch.OnIncoming(func(domain.UserID) {})
		orch.OnState(func(domain.UserID, peer.State) {})
		orch.OnChannel(func(domain.UserID, domain.Channel) {})
	}
	<-done
}

func TestHandleEnvelope_MalformedPayloadIgnored(t *testing.T) {
	hub := newMemHub()
	netw := peer.NewMemNetwork()
	alice := newNode(hub, netw, "9876543210ab")

	alice.orch.HandleEnvelope(domain.Envelope{
		Type: domain.EnvOffer, From: "1234567890cd",
		Payload: json.RawMessage(`not json`),
	})
	alice.orch.HandleEnvelope(domain.Envelope{
		Type: domain.EnvICECandidate, From: "1234567890cd",
		Payload: json.RawMessage(`{}`),
	})
	require.Equal(t, peer.StateIdle, alice.orch.State())
}
