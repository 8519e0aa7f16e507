// Package peer owns the transport-level connection to exactly one partner
// at a time.
//
// The Orchestrator negotiates the connection over signaling, arbitrates the
// offerer/answerer role (first mover offers; a simultaneous double-start is
// broken deterministically by user ID order), and surfaces state
// transitions plus the established channel to its callbacks. The offerer
// listens and advertises candidate addresses; the answerer dials them. The
// channel itself is an ordered, reliable JSON frame stream.
package peer
