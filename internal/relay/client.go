package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"

	"golang.org/x/net/websocket"

	"eptp/internal/domain"
)

// ErrOffline is returned when sending while the relay socket is down.
// Signaling being down is surfaced, not fatal: connection attempts simply
// cannot succeed until it recovers.
var ErrOffline = errors.New("signaling relay offline")

// Client is one user session's connection to the signaling relay.
type Client struct {
	userID  domain.UserID
	ws      *websocket.Conn
	handler func(domain.Envelope)

	mu     sync.Mutex // serialises writes
	enc    *json.Encoder
	online atomic.Bool
}

// Dial connects to the relay WebSocket at rawURL (ws:// or wss://),
// registers userID, and starts delivering inbound envelopes to handler.
// Handler calls are serialised in socket order.
func Dial(rawURL string, userID domain.UserID, handler func(domain.Envelope)) (*Client, error) {
	origin, err := originFor(rawURL)
	if err != nil {
		return nil, err
	}
	ws, err := websocket.Dial(rawURL, "", origin)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	c := &Client{
		userID:  userID,
		ws:      ws,
		handler: handler,
		enc:     json.NewEncoder(ws),
	}
	c.online.Store(true)

	if err := c.Send(context.Background(), domain.Envelope{Type: domain.EnvRegister, UserID: userID}); err != nil {
		_ = ws.Close()
		return nil, err
	}
	go c.readLoop()
	return c, nil
}

// Send writes one envelope to the relay.
func (c *Client) Send(ctx context.Context, env domain.Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.online.Load() {
		return ErrOffline
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.enc.Encode(env); err != nil {
		c.online.Store(false)
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// Online reports whether the relay socket is still live.
func (c *Client) Online() bool { return c.online.Load() }

// Close tears down the relay socket. The relay unbinds the registration on
// its side when the socket closes.
func (c *Client) Close() error {
	c.online.Store(false)
	return c.ws.Close()
}

func (c *Client) readLoop() {
	dec := json.NewDecoder(c.ws)
	for {
		var env domain.Envelope
		if err := dec.Decode(&env); err != nil {
			c.online.Store(false)
			return
		}
		if c.handler != nil {
			c.handler(env)
		}
	}
}

// originFor derives the handshake Origin header from the ws URL.
func originFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	scheme := "http"
	if u.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + u.Host, nil
}

// Compile-time assertion that Client implements domain.Signaler.
var _ domain.Signaler = (*Client)(nil)
