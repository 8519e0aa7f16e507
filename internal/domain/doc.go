// Package domain defines the messenger's core data models and interfaces.
// It contains plain types (identifiers, messages, wire envelopes and frames)
// and the contracts the other packages implement; no behaviour lives here.
package domain
