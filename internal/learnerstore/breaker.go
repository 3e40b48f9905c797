package learnerstore

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// errBreakerOpen is returned by breaker.do when the remote store is being
// skipped outright. It never escapes the gateway: callers of the gateway
// only ever observe the fallback behavior.
var errBreakerOpen = errors.New("learnerstore: circuit open")

const (
	// breakerTrip is the consecutive-failure count that opens the circuit.
	breakerTrip = 3

	// breakerCooldown is how long an open circuit skips the remote before
	// letting a single probe call through.
	breakerCooldown = 30 * time.Second
)

// breaker is a three-state circuit breaker guarding the remote store.
// Closed passes calls through; after breakerTrip consecutive failures it
// opens and rejects immediately; once breakerCooldown elapses a single
// probe call is allowed, and its outcome either closes the circuit again
// or restarts the cooldown.
type breaker struct {
	name string

	mu       sync.Mutex
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(name string) *breaker {
	return &breaker{name: name}
}

// do runs fn through the breaker. An [ErrNotFound] result counts as a
// success: the remote answered, it just has no value.
func (b *breaker) do(fn func() error) error {
	if !b.allow() {
		return errBreakerOpen
	}
	err := fn()
	if err == nil || errors.Is(err, ErrNotFound) {
		b.onSuccess()
		return err
	}
	b.onFailure()
	return err
}

// open reports whether calls are currently being rejected.
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures >= breakerTrip && time.Since(b.openedAt) < breakerCooldown
}

func (b *breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures < breakerTrip {
		return true
	}
	if time.Since(b.openedAt) < breakerCooldown {
		return false
	}
	// Half-open: admit one probe, hold the rest until it resolves.
	if b.probing {
		return false
	}
	b.probing = true
	return true
}

func (b *breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures >= breakerTrip {
		slog.Info("learnerstore: circuit closed, remote store recovered", "breaker", b.name)
	}
	b.failures = 0
	b.probing = false
}

func (b *breaker) onFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.probing = false
	if b.failures == breakerTrip {
		slog.Warn("learnerstore: circuit opened, skipping remote store",
			"breaker", b.name, "cooldown", breakerCooldown)
	}
	if b.failures >= breakerTrip {
		b.openedAt = time.Now()
	}
}
