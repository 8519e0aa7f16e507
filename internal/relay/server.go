package relay

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"golang.org/x/net/websocket"

	"eptp/internal/domain"
)

// Push wake texts. Generic on purpose: the relay never has message content,
// and the notification must not leak who is calling either.
const (
	pushTitle       = "EPTP"
	pushConnectBody = "New Connection Request"
	pushMessageBody = "New Secure Message"
)

// PushSender delivers a wake notification to a stored push subscription.
// Delivery is best effort; failures are logged by the caller, never retried.
type PushSender interface {
	Push(ctx context.Context, sub json.RawMessage, title, body string) error
}

// Server is the signaling relay process. It owns the registry and routes
// inbound envelopes to exactly one live socket or to a push wake.
type Server struct {
	log  *slog.Logger
	reg  *Registry
	push PushSender
}

// NewServer returns a relay server. push may be nil when no VAPID keys are
// configured; offline targets then simply miss their wake.
func NewServer(log *slog.Logger, push PushSender) *Server {
	return &Server{log: log, reg: NewRegistry(), push: push}
}

// Handler returns the relay's HTTP surface: the WebSocket endpoint at /ws
// and a health probe at /healthz.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/ws", websocket.Handler(s.handleConn))
	return r
}

// Shutdown closes every registered socket, as a process restart would.
// Clients observe the close and must re-register before signaling again.
func (s *Server) Shutdown() {
	for _, c := range s.reg.Drain() {
		_ = c.close()
	}
}

// client is one connected socket. Writes are serialised: forwarded envelopes
// and any future server-originated frames share the encoder.
type client struct {
	ws *websocket.Conn

	mu  sync.Mutex
	enc *json.Encoder
}

func (c *client) forward(raw json.RawMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enc.Encode(raw)
}

func (c *client) close() error { return c.ws.Close() }

func (s *Server) handleConn(ws *websocket.Conn) {
	defer func() { _ = ws.Close() }()

	c := &client{ws: ws, enc: json.NewEncoder(ws)}
	dec := json.NewDecoder(ws)

	var self domain.UserID
	defer func() {
		if self != "" {
			// Only this socket's own binding; a newer registration survives.
			s.reg.Unbind(self, c)
			s.log.Info("unregistered", "userId", self)
		}
	}()

	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return
		}
		var env domain.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.Warn("malformed envelope dropped", "err", err)
			continue
		}
		s.route(ws.Request().Context(), c, &self, env, raw)
	}
}

// route dispatches one decoded envelope. Malformed input is logged and
// ignored; nothing a client sends may crash the relay.
func (s *Server) route(ctx context.Context, c *client, self *domain.UserID, env domain.Envelope, raw json.RawMessage) {
	switch env.Type {
	case domain.EnvRegister:
		if env.UserID == "" {
			s.log.Warn("register without userId")
			return
		}
		*self = env.UserID
		s.reg.Bind(env.UserID, c)
		s.log.Info("registered", "userId", env.UserID)

	case domain.EnvPushSubscribe:
		userID := env.UserID
		if userID == "" {
			userID = *self
		}
		if userID == "" || len(env.Payload) == 0 {
			s.log.Warn("push_subscribe without userId or subscription")
			return
		}
		s.reg.Subscribe(userID, env.Payload)
		s.log.Info("push subscription stored", "userId", userID)

	case domain.EnvStartChat:
		if env.To == "" {
			s.log.Warn("start_chat without target")
			return
		}
		notice, err := json.Marshal(domain.Envelope{Type: domain.EnvIncomingChat, From: env.From})
		if err != nil {
			s.log.Error("encode incoming_chat", "err", err)
			return
		}
		if target, ok := s.reg.Lookup(env.To); ok {
			if err := target.forward(notice); err != nil {
				s.log.Warn("forward incoming_chat", "to", env.To, "err", err)
			}
			return
		}
		s.wake(ctx, env.To, pushConnectBody)

	default:
		if env.To == "" {
			s.log.Warn("envelope without target dropped", "type", env.Type)
			return
		}
		if target, ok := s.reg.Lookup(env.To); ok {
			// Forward the raw bytes so negotiation payloads pass verbatim.
			if err := target.forward(raw); err != nil {
				s.log.Warn("forward", "type", env.Type, "to", env.To, "err", err)
			}
			return
		}
		// Offline: an offer means someone is trying to reach them, so wake.
		// Answers and ice-candidates only matter mid-negotiation; drop them.
		if env.Type == domain.EnvOffer {
			s.wake(ctx, env.To, pushMessageBody)
		}
	}
}

// wake sends at most one best-effort push notification to userID.
func (s *Server) wake(ctx context.Context, userID domain.UserID, body string) {
	if s.push == nil {
		s.log.Info("push disabled, wake skipped", "userId", userID)
		return
	}
	sub, ok := s.reg.Subscription(userID)
	if !ok {
		s.log.Info("no push subscription", "userId", userID)
		return
	}
	if err := s.push.Push(ctx, sub, pushTitle, body); err != nil {
		s.log.Warn("push failed", "userId", userID, "err", err)
	}
}
