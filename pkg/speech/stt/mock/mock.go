// Package mock provides test doubles for the stt.Provider and stt.Session
// interfaces.
//
// A mock Session delivers its configured Result when Deliver is called,
// letting tests control exactly when "the learner finished speaking".
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/7spvzk7dmv-jpg/listen-ES/pkg/speech/stt"
)

// StartCall records a single invocation of Start.
type StartCall struct {
	// Ctx is the context passed to Start.
	Ctx context.Context
	// Locale is the locale passed to Start.
	Locale string
}

// Provider is a mock implementation of stt.Provider. Each Start call hands
// out a new [Session], which is also recorded in Sessions.
type Provider struct {
	mu sync.Mutex

	// StartErr, if non-nil, is returned by Start instead of a session.
	StartErr error

	// Result is copied into each new session.
	Result stt.Result

	// Calls records every Start invocation in order.
	Calls []StartCall

	// Sessions records every session handed out, in order.
	Sessions []*Session
}

// Start records the call and returns a fresh mock session.
func (p *Provider) Start(ctx context.Context, locale string) (stt.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, StartCall{Ctx: ctx, Locale: locale})
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		result:     p.Result,
		transcript: make(chan stt.Result, 1),
		done:       make(chan struct{}),
	}
	p.Sessions = append(p.Sessions, s)
	return s, nil
}

// CallCount returns the number of Start invocations. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastSession returns the most recently created session, or nil.
func (p *Provider) LastSession() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Sessions) == 0 {
		return nil
	}
	return p.Sessions[len(p.Sessions)-1]
}

// Session is a mock implementation of stt.Session.
type Session struct {
	result     stt.Result
	transcript chan stt.Result

	mu     sync.Mutex
	audio  [][]byte
	done   chan struct{}
	closed bool
}

// SendAudio records the chunk. Fails after Close.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock: session is closed")
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)
	s.audio = append(s.audio, c)
	return nil
}

// Transcript returns the result channel.
func (s *Session) Transcript() <-chan stt.Result { return s.transcript }

// Deliver emits the configured result as the final transcript and closes
// the channel. Calling Deliver on a closed session is a no-op.
func (s *Session) Deliver() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	s.transcript <- s.result
	close(s.transcript)
}

// Close abandons the capture without delivering a transcript. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	close(s.transcript)
	return nil
}

// Closed reports whether the session has ended, by Deliver or Close.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AudioChunks returns the recorded audio chunks.
func (s *Session) AudioChunks() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.audio
}

// Ensure the mocks satisfy the interfaces at compile time.
var (
	_ stt.Provider = (*Provider)(nil)
	_ stt.Session  = (*Session)(nil)
)
