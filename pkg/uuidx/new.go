// Package uuidx generates time-ordered identifiers for agents and pipeline
// step instances. UUIDv7 keeps ids sortable by creation time, which keeps
// sub-agent documents clustered near their siblings in the backing store.
package uuidx

import "github.com/google/uuid"

// New returns a fresh UUIDv7. It panics if the generator fails, which only
// happens when the OS entropy source is unavailable.
func New() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewString returns a fresh UUIDv7 rendered as a string. This is the form
// stored in agent records and stamped into generated step instance ids.
func NewString() string {
	return New().String()
}
