// Package session runs the application protocol on top of an established
// peer channel.
//
// On open each side sends a fresh public key; once the reciprocal key
// arrives the session derives the shared symmetric key and is "secured".
// From then on chat messages travel as encrypted frames, a 10s keepalive
// ping/pong tracks optimistic partner presence, and read receipts flow back
// to flip stored messages to read. Session keys live only as long as the
// channel: every new channel performs a fresh exchange.
package session
