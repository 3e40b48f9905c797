package learnerstore

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := newBreaker("test")
	boom := errors.New("boom")

	for i := 0; i < breakerTrip; i++ {
		if err := b.do(func() error { return boom }); !errors.Is(err, boom) {
			t.Fatalf("call %d: err = %v, want boom", i, err)
		}
	}
	if err := b.do(func() error { t.Fatal("fn must not run while open"); return nil }); !errors.Is(err, errBreakerOpen) {
		t.Fatalf("err = %v, want errBreakerOpen", err)
	}
	if !b.open() {
		t.Error("open() = false after trip")
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()
	b := newBreaker("test")
	boom := errors.New("boom")

	b.do(func() error { return boom })
	b.do(func() error { return boom })
	b.do(func() error { return nil })
	b.do(func() error { return boom })
	b.do(func() error { return boom })
	if b.open() {
		t.Error("two failures after a success should not trip the circuit")
	}
}

func TestBreakerNotFoundCountsAsSuccess(t *testing.T) {
	t.Parallel()
	b := newBreaker("test")

	for i := 0; i < breakerTrip*2; i++ {
		if err := b.do(func() error { return ErrNotFound }); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound passed through", err)
		}
	}
	if b.open() {
		t.Error("ErrNotFound is a healthy answer and must not trip the circuit")
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	t.Parallel()
	b := newBreaker("test")
	boom := errors.New("boom")

	for i := 0; i < breakerTrip; i++ {
		b.do(func() error { return boom })
	}
	// Rewind the open timestamp so the cooldown has elapsed.
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * breakerCooldown)
	b.mu.Unlock()

	ran := false
	if err := b.do(func() error { ran = true; return nil }); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if !ran {
		t.Fatal("half-open circuit should admit a probe call")
	}
	if b.open() {
		t.Error("successful probe should close the circuit")
	}
}

func TestBreakerFailedProbeRestartsCooldown(t *testing.T) {
	t.Parallel()
	b := newBreaker("test")
	boom := errors.New("boom")

	for i := 0; i < breakerTrip; i++ {
		b.do(func() error { return boom })
	}
	b.mu.Lock()
	b.openedAt = time.Now().Add(-2 * breakerCooldown)
	b.mu.Unlock()

	if err := b.do(func() error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("probe err = %v, want boom", err)
	}
	if !b.open() {
		t.Error("failed probe should leave the circuit open")
	}
	if err := b.do(func() error { return nil }); !errors.Is(err, errBreakerOpen) {
		t.Errorf("err = %v, want errBreakerOpen during restarted cooldown", err)
	}
}
