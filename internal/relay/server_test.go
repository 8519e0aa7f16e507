package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"eptp/internal/domain"
	"eptp/internal/relay"
)

type fakePush struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakePush) Push(_ context.Context, _ json.RawMessage, _, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, body)
	return nil
}

func (f *fakePush) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRelay spins up a relay over httptest and returns its ws URL.
func testRelay(t *testing.T, push relay.PushSender) string {
	t.Helper()
	srv := httptest.NewServer(relay.NewServer(discardLogger(), push).Handler())
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

// dial connects a test user and funnels inbound envelopes into a channel.
func dial(t *testing.T, url string, userID domain.UserID) (*relay.Client, chan domain.Envelope) {
	t.Helper()
	inbox := make(chan domain.Envelope, 16)
	c, err := relay.Dial(url, userID, func(env domain.Envelope) { inbox <- env })
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, inbox
}

func recvEnv(t *testing.T, inbox chan domain.Envelope) domain.Envelope {
	t.Helper()
	select {
	case env := <-inbox:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
		return domain.Envelope{}
	}
}

func TestStartChat_ForwardsWhenOnline(t *testing.T) {
	url := testRelay(t, nil)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")
	_, bobInbox := dial(t, url, "1234567890cd")

	require.NoError(t, alice.Send(ctx, domain.Envelope{
		Type: domain.EnvStartChat, From: "9876543210ab", To: "1234567890cd",
	}))

	env := recvEnv(t, bobInbox)
	require.Equal(t, domain.EnvIncomingChat, env.Type)
	require.Equal(t, domain.UserID("9876543210ab"), env.From)
}

func TestStartChat_OfflineTriggersOnePush(t *testing.T) {
	push := &fakePush{}
	url := testRelay(t, push)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")

	// Bob registers a push subscription, then drops offline.
	bob, _ := dial(t, url, "1234567890cd")
	require.NoError(t, bob.Send(ctx, domain.Envelope{
		Type: domain.EnvPushSubscribe, UserID: "1234567890cd",
		Payload: json.RawMessage(`{"endpoint":"https://push.example/abc"}`),
	}))
	require.NoError(t, bob.Close())

	// Retried until the relay has processed bob's disconnect; repeated
	// start_chat is harmless, so every wake must carry the same generic text.
	require.Eventually(t, func() bool {
		err := alice.Send(ctx, domain.Envelope{
			Type: domain.EnvStartChat, From: "9876543210ab", To: "1234567890cd",
		})
		return err == nil && len(push.sent()) >= 1
	}, 2*time.Second, 20*time.Millisecond)
	for _, body := range push.sent() {
		require.Equal(t, "New Connection Request", body)
	}
}

func TestNegotiation_ForwardedVerbatim(t *testing.T) {
	url := testRelay(t, nil)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")
	_, bobInbox := dial(t, url, "1234567890cd")

	payload := json.RawMessage(`{"token":"t-1","custom":"survives"}`)
	require.NoError(t, alice.Send(ctx, domain.Envelope{
		Type: domain.EnvOffer, From: "9876543210ab", To: "1234567890cd", Payload: payload,
	}))

	env := recvEnv(t, bobInbox)
	require.Equal(t, domain.EnvOffer, env.Type)
	require.JSONEq(t, string(payload), string(env.Payload))
}

func TestNegotiation_OfflineSemantics(t *testing.T) {
	push := &fakePush{}
	url := testRelay(t, push)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")
	bob, _ := dial(t, url, "1234567890cd")
	require.NoError(t, bob.Send(ctx, domain.Envelope{
		Type: domain.EnvPushSubscribe, UserID: "1234567890cd",
		Payload: json.RawMessage(`{"endpoint":"https://push.example/abc"}`),
	}))
	require.NoError(t, bob.Close())

	// Answers and ice-candidates to an offline peer vanish silently.
	require.NoError(t, alice.Send(ctx, domain.Envelope{Type: domain.EnvAnswer, To: "1234567890cd"}))
	require.NoError(t, alice.Send(ctx, domain.Envelope{Type: domain.EnvICECandidate, To: "1234567890cd"}))

	// An offer wakes the peer instead.
	require.Eventually(t, func() bool {
		err := alice.Send(ctx, domain.Envelope{Type: domain.EnvOffer, To: "1234567890cd"})
		return err == nil && len(push.sent()) >= 1
	}, 2*time.Second, 20*time.Millisecond)
	require.Equal(t, []string{"New Secure Message"}, push.sent()[:1])
}

func TestMalformedInput_Ignored(t *testing.T) {
	url := testRelay(t, nil)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")
	_, bobInbox := dial(t, url, "1234567890cd")

	// Envelope with no target and unknown type: dropped, relay stays up.
	require.NoError(t, alice.Send(ctx, domain.Envelope{Type: "bogus"}))

	require.NoError(t, alice.Send(ctx, domain.Envelope{
		Type: domain.EnvStartChat, From: "9876543210ab", To: "1234567890cd",
	}))
	env := recvEnv(t, bobInbox)
	require.Equal(t, domain.EnvIncomingChat, env.Type)
}

func TestRegister_LastRegistrationWins(t *testing.T) {
	url := testRelay(t, nil)
	ctx := context.Background()

	alice, _ := dial(t, url, "9876543210ab")

	// A self-addressed start_chat round-trips through the relay, proving the
	// registration was processed before the next socket dials in.
	stale, staleInbox := dial(t, url, "1234567890cd")
	require.NoError(t, stale.Send(ctx, domain.Envelope{Type: domain.EnvStartChat, To: "1234567890cd"}))
	recvEnv(t, staleInbox)

	fresh, freshInbox := dial(t, url, "1234567890cd")
	require.NoError(t, fresh.Send(ctx, domain.Envelope{Type: domain.EnvStartChat, To: "1234567890cd"}))
	recvEnv(t, freshInbox)

	require.NoError(t, alice.Send(ctx, domain.Envelope{
		Type: domain.EnvStartChat, From: "9876543210ab", To: "1234567890cd",
	}))

	env := recvEnv(t, freshInbox)
	require.Equal(t, domain.EnvIncomingChat, env.Type)
	select {
	case env := <-staleInbox:
		t.Fatalf("stale socket received %+v", env)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRelayRestart_RequiresReRegister(t *testing.T) {
	rs := relay.NewServer(discardLogger(), nil)
	srv := httptest.NewServer(rs.Handler())
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	alice, _ := dial(t, url, "9876543210ab")
	require.True(t, alice.Online())

	// Relay restarts: registrations are in-memory only, so every socket
	// drops and new signaling fails until the client re-registers.
	rs.Shutdown()

	require.Eventually(t, func() bool { return !alice.Online() }, 2*time.Second, 20*time.Millisecond)
	require.Error(t, alice.Send(context.Background(), domain.Envelope{
		Type: domain.EnvStartChat, From: "9876543210ab", To: "1234567890cd",
	}))
}

func TestClose_MarksClientOffline(t *testing.T) {
	url := testRelay(t, nil)

	alice, _ := dial(t, url, "9876543210ab")
	require.True(t, alice.Online())
	require.NoError(t, alice.Close())
	require.False(t, alice.Online())
	require.ErrorIs(t, alice.Send(context.Background(), domain.Envelope{Type: "x", To: "y"}), relay.ErrOffline)
}
