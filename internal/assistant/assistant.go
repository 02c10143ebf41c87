// Package assistant orchestrates message delivery across the delivery
// channels, maintains the conversation transcript, and persists every
// exchange.
package assistant

import (
	"time"

	"github.com/google/uuid"

	"github.com/garrellmacarilay/floodguard-agent/internal/errclass"
)

// State tracks which channel the conversation-start probes verified.
// It is advisory: sends always re-attempt channels regardless of state.
type State int

const (
	// StateUninitialized means no channel has been probed yet.
	StateUninitialized State = iota
	// StatePrimaryReady means the first channel answered its probe.
	StatePrimaryReady
	// StateSecondaryReady means the first channel's probe failed but a
	// later channel established a session.
	StateSecondaryReady
	// StateUnavailable means every probe failed. Sends are still
	// attempted; the state is not a lock-out.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StatePrimaryReady:
		return "primary_ready"
	case StateSecondaryReady:
		return "secondary_ready"
	case StateUnavailable:
		return "unavailable"
	default:
		return "invalid"
	}
}

// Turn is one entry of the live transcript. Error turns carry the
// classified kind alongside the user-facing text.
type Turn struct {
	ID          string        `json:"id"`
	Role        string        `json:"role"`
	Text        string        `json:"text"`
	Timestamp   time.Time     `json:"timestamp"`
	IsStreaming bool          `json:"is_streaming"`
	Channel     string        `json:"channel,omitempty"`
	ErrorKind   errclass.Kind `json:"error_kind,omitempty"`
}

// TurnUpdate receives transcript changes for a single send: the
// placeholder, each streamed chunk (text grows monotonically), and the
// final resolution. Updates for one turn arrive in order; callers
// handling concurrent sends must key their handling by Turn.ID.
type TurnUpdate func(Turn)

func newTurnID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
