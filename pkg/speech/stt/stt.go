// Package stt defines the Provider interface for Speech-to-Text backends.
//
// The drill loop captures one utterance at a time: a [Session] is opened for
// the target locale, the learner speaks, and the session delivers a single
// final transcript. Interim guesses never reach the caller — grading runs on
// the final transcript only.
//
// Implementations must be safe for concurrent use. The session controller
// enforces the at-most-one-live-capture rule; providers only need to make
// each individual session well-behaved.
package stt

import "context"

// Result is the final transcript of one capture.
type Result struct {
	// Text is the recognized utterance.
	Text string

	// Confidence is the provider's confidence in [0,1], or 0 when the
	// provider does not report one.
	Confidence float64
}

// Session is one live speech capture.
//
// Callers must call Close when the session is no longer needed. Failing to
// do so may leak goroutines and network connections inside the provider.
type Session interface {
	// SendAudio delivers a chunk of encoded audio to the recognizer.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Transcript returns a channel that delivers at most one final [Result]
	// and is then closed. A session closed before any speech was recognized
	// closes the channel without a value.
	Transcript() <-chan Result

	// Close abandons the capture. It is idempotent. Any transcript not yet
	// delivered is discarded.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Start opens a capture session for the given BCP-47 locale
	// (e.g. "es-ES"). The session lives until its first final transcript or
	// until Close, whichever comes first.
	Start(ctx context.Context, locale string) (Session, error)
}
