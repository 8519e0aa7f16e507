package relay

import (
	"encoding/json"
	"sync"

	"eptp/internal/domain"
)

// peerConn is one live client socket the registry can write to or close.
type peerConn interface {
	forward(raw json.RawMessage) error
	close() error
}

// Registry is the relay's shared mutable state: one live connection per
// registered user ID plus any push subscriptions. Bindings follow
// last-registration-wins so a reconnecting client displaces its stale
// socket; removal is single-writer-per-key, so only the socket that owns a
// binding may drop it, so a slow close handler cannot unbind a newer socket.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]peerConn
	subs  map[domain.UserID]json.RawMessage
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[domain.UserID]peerConn),
		subs:  make(map[domain.UserID]json.RawMessage),
	}
}

// Bind associates conn with userID, replacing any prior binding.
func (r *Registry) Bind(userID domain.UserID, conn peerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[userID] = conn
}

// Unbind removes the binding only if conn still owns it.
func (r *Registry) Unbind(userID domain.UserID, conn peerConn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conns[userID] == conn {
		delete(r.conns, userID)
	}
}

// Lookup returns the live connection for userID, if any.
func (r *Registry) Lookup(userID domain.UserID) (peerConn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[userID]
	return c, ok
}

// Drain removes and returns every live connection, leaving the registry
// empty. Push subscriptions survive: they outlive any one socket.
func (r *Registry) Drain() []peerConn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]peerConn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	r.conns = make(map[domain.UserID]peerConn)
	return out
}

// Subscribe stores userID's push subscription, replacing any prior one.
func (r *Registry) Subscribe(userID domain.UserID, sub json.RawMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[userID] = sub
}

// Subscription returns userID's push subscription, if any.
func (r *Registry) Subscription(userID domain.UserID) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subs[userID]
	return s, ok
}
