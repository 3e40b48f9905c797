// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio and to verify the text and locale
// passed by the session controller.
package mock

import (
	"context"
	"sync"

	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Text is the text passed to Synthesize.
	Text string
	// Locale is the locale passed to Synthesize.
	Locale string
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize. Defaults to nil.
	Audio []byte

	// MIME is returned by Synthesize. Defaults to "audio/mpeg" when empty.
	MIME string

	// Err, if non-nil, is returned by Synthesize instead of audio.
	Err error

	// Block, if non-nil, makes Synthesize wait until the channel is closed
	// or ctx is cancelled. Used to test fire-and-forget cancellation.
	Block chan struct{}

	// Calls records every invocation in order.
	Calls []SynthesizeCall
}

// Synthesize records the call and returns the configured response.
func (p *Provider) Synthesize(ctx context.Context, text, locale string) ([]byte, string, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, SynthesizeCall{Ctx: ctx, Text: text, Locale: locale})
	block := p.Block
	audio, mime, err := p.Audio, p.MIME, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if err != nil {
		return nil, "", err
	}
	if mime == "" {
		mime = "audio/mpeg"
	}
	return audio, mime, nil
}

// CallCount returns the number of recorded calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent call, or a zero value when none were made.
func (p *Provider) LastCall() SynthesizeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return SynthesizeCall{}
	}
	return p.Calls[len(p.Calls)-1]
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
