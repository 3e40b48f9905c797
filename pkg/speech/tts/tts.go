// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Google Cloud TTS or
// a local Piper instance) behind a single Synthesize call. Playback in the
// drill loop is fire-and-forget: the session controller launches synthesis on
// its own goroutine and abandons the result when the learner moves on, so
// implementations must honour context cancellation promptly.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text in the given BCP-47 locale (e.g. "es-ES") and
	// returns the encoded audio together with its MIME type. A failed or
	// cancelled synthesis returns an error; it never panics and never blocks
	// past ctx.
	Synthesize(ctx context.Context, text, locale string) (audio []byte, mime string, err error)
}
