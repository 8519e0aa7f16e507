package app

import (
	"fmt"
	"os"

	"eptp/internal/domain"
	"eptp/internal/peer"
	"eptp/internal/relay"
	"eptp/internal/store"
)

// Wire bundles the stores and the relay endpoint for the CLI.
type Wire struct {
	Messages    domain.MessageStore
	Credentials domain.CredentialStore
	RelayURL    string
}

// NewWire constructs the dependency graph from cfg.
func NewWire(cfg Config) (*Wire, error) {
	if err := os.MkdirAll(cfg.Home, 0o700); err != nil {
		return nil, fmt.Errorf("create home dir: %w", err)
	}
	return &Wire{
		Messages:    store.NewMessageFileStore(cfg.Home),
		Credentials: store.NewCredentialFileStore(cfg.Home),
		RelayURL:    cfg.RelayURL,
	}, nil
}

// Connect registers userID with the relay and builds an orchestrator over a
// TCP transport. Inbound signaling envelopes are fed straight into the
// orchestrator. configure runs before any envelope is delivered, so
// callbacks registered there cannot miss an early incoming connection.
func (w *Wire) Connect(userID domain.UserID, configure func(*peer.Orchestrator)) (*peer.Orchestrator, domain.Signaler, error) {
	var orch *peer.Orchestrator
	ready := make(chan struct{})
	client, err := relay.Dial(w.RelayURL, userID, func(env domain.Envelope) {
		// Envelopes can arrive before the orchestrator is wired; hold them
		// until it is so none are dropped.
		<-ready
		orch.HandleEnvelope(env)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial relay: %w", err)
	}
	orch = peer.New(userID, client, peer.NewTCPTransport())
	if configure != nil {
		configure(orch)
	}
	close(ready)
	return orch, client, nil
}
