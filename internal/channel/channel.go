// Package channel defines the delivery channels that carry an enriched
// prompt to an AI backend. Two implementations exist: Relay sends
// through the application server, Gemini talks to the model API
// directly. The orchestrator tries them in a configured order.
package channel

import (
	"context"
	"io"
)

// Stream yields reply text incrementally. Next returns io.EOF after the
// final chunk; any other error means the stream failed mid-flight.
// Close releases the underlying connection and is safe to call more
// than once.
type Stream interface {
	Next() (chunk string, err error)
	Close() error
}

// Channel is a single delivery path to an AI backend.
type Channel interface {
	// Name identifies the channel in logs and message metadata.
	Name() string

	// Probe verifies the channel is usable. For session-based channels
	// a successful probe also establishes the session.
	Probe(ctx context.Context) error

	// Ready reports whether the channel can take a send right now.
	// Stateless channels are always ready; session-based channels are
	// ready only once a probe has succeeded.
	Ready() bool

	// Send delivers prompt and returns the complete reply text.
	Send(ctx context.Context, prompt string) (string, error)

	// Stream delivers prompt and returns the reply as a chunk stream.
	Stream(ctx context.Context, prompt string) (Stream, error)
}

// textStream adapts an already-complete reply to the Stream interface.
// Used by channels that have no native streaming transport.
type textStream struct {
	text string
	done bool
}

func (s *textStream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}
	s.done = true
	return s.text, nil
}

func (s *textStream) Close() error { return nil }
