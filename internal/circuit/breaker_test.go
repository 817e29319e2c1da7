package circuit

import (
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestBreakerStaysClosedUnderSuccess(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 10; i++ {
		if err := b.Execute(func() error { return nil }); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED", b.State())
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errBoom })
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	// Open state fails fast without invoking fn.
	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", err)
	}
	if called {
		t.Error("fn must not run while the circuit is open")
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	b := New("test", Config{MaxFailures: 3, Cooldown: time.Minute})

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return nil })
	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })

	if b.State() != StateClosed {
		t.Errorf("interleaved successes should keep the circuit closed, state = %v", b.State())
	}
}

func TestHalfOpenProbeRecovers(t *testing.T) {
	b := New("test", Config{MaxFailures: 2, Cooldown: 20 * time.Millisecond})

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	time.Sleep(30 * time.Millisecond)
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN after cooldown", b.State())
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v, want CLOSED after successful probe", b.State())
	}
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	b := New("test", Config{MaxFailures: 2, Cooldown: 20 * time.Millisecond})

	_ = b.Execute(func() error { return errBoom })
	_ = b.Execute(func() error { return errBoom })
	time.Sleep(30 * time.Millisecond)

	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Errorf("state = %v, want OPEN after failed probe", b.State())
	}
}

func TestHalfOpenLimitsProbes(t *testing.T) {
	b := New("test", Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond, MaxProbes: 1})

	_ = b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	// First probe admitted, held "in flight" by not completing before
	// the second arrives is hard to model synchronously; instead check
	// the counter-based rejection path directly.
	b.mu.Lock()
	b.currentState(time.Now())
	b.counts.onRequest()
	b.mu.Unlock()

	err := b.Execute(func() error { return nil })
	if !errors.Is(err, ErrTooManyProbes) {
		t.Errorf("expected ErrTooManyProbes, got %v", err)
	}
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("remote", Config{
		MaxFailures: 1,
		Cooldown:    10 * time.Millisecond,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = b.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)
	_ = b.Execute(func() error { return nil })

	want := []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestReset(t *testing.T) {
	b := New("test", Config{MaxFailures: 1, Cooldown: time.Minute})
	_ = b.Execute(func() error { return errBoom })
	if b.State() != StateOpen {
		t.Fatal("setup: breaker should be open")
	}
	b.Reset()
	if b.State() != StateClosed {
		t.Errorf("state after Reset = %v, want CLOSED", b.State())
	}
}
