// Package relay implements the signaling relay and its client.
//
// The relay is the only always-on process in the system. It never sees chat
// content: it binds one live WebSocket per registered user ID, forwards
// opaque negotiation envelopes (offer, answer, ice-candidate) between two
// registered users, and falls back to a generic web-push wake when the
// target is offline. Registrations are in-memory only; a relay restart
// drops them all and clients must re-register on reconnect.
//
// The Client half is the per-user-session connection used by the app: it
// registers the local user ID on dial, exposes Send for outbound envelopes,
// delivers inbound envelopes to a handler, and reports liveness.
package relay
