package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, hook func(string, State, State)) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{
		FailureThreshold: threshold,
		ResetTimeout:     time.Second,
		OnStateChange:    hook,
	})
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreakerOpensAndRecovers(t *testing.T) {
	var transitions []string
	cb, clock := newTestBreaker(2, func(name string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	})
	fail := func() error { return errBoom }

	cb.Execute(fail)
	if cb.State() != StateClosed {
		t.Fatal("one failure should not open the circuit")
	}
	cb.Execute(fail)
	if cb.State() != StateOpen {
		t.Fatal("expected circuit open after threshold")
	}

	calls := 0
	err := cb.Execute(func() error { calls++; return nil })
	if !errors.Is(err, ErrCircuitOpen) || calls != 0 {
		t.Fatalf("expected fail-fast while open, err=%v calls=%d", err, calls)
	}

	clock.Advance(time.Second)
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe should run after reset timeout: %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", cb.State())
	}

	want := []string{"closed->open", "open->half-open", "half-open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreakerFailedProbeReopens(t *testing.T) {
	cb, clock := newTestBreaker(1, nil)
	cb.Execute(func() error { return errBoom })
	clock.Advance(2 * time.Second)
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateOpen {
		t.Fatalf("expected re-open after failed probe, got %v", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsCount(t *testing.T) {
	cb, _ := newTestBreaker(2, nil)
	cb.Execute(func() error { return errBoom })
	cb.Execute(func() error { return nil })
	cb.Execute(func() error { return errBoom })
	if cb.State() != StateClosed {
		t.Error("non-consecutive failures should not open the circuit")
	}
}

func TestCircuitBreakerReset(t *testing.T) {
	cb, _ := newTestBreaker(1, nil)
	cb.Execute(func() error { return errBoom })
	cb.Reset()
	if cb.State() != StateClosed {
		t.Error("expected closed after Reset")
	}
}

func TestRetrySucceedsEventually(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond}, func() error {
		attempts++
		if attempts < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil || attempts != 3 {
		t.Errorf("err=%v attempts=%d", err, attempts)
	}
}

func TestRetryExhausted(t *testing.T) {
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond}, func() error {
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Errorf("expected last error wrapped, got %v", err)
	}
}

func TestRetryPermanentStops(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Millisecond}, func() error {
		attempts++
		return Permanent(errBoom)
	})
	if attempts != 1 {
		t.Errorf("expected a single attempt, got %d", attempts)
	}
	if err != errBoom {
		t.Errorf("expected unwrapped permanent error, got %v", err)
	}
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour}, func() error {
		attempts++
		cancel()
		return errBoom
	})
	if !errors.Is(err, context.Canceled) || attempts != 1 {
		t.Errorf("err=%v attempts=%d", err, attempts)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 10}
	if d := backoffDelay(4, cfg); d != 3*time.Second {
		t.Errorf("expected cap, got %v", d)
	}
	if d := backoffDelay(1, cfg); d != time.Second {
		t.Errorf("expected initial delay without jitter, got %v", d)
	}
}

func TestWithTimeout(t *testing.T) {
	err := WithTimeout(context.Background(), 10*time.Millisecond, "slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if err := WithTimeout(context.Background(), 0, "direct", func(context.Context) error { return errBoom }); err != errBoom {
		t.Errorf("expected direct call, got %v", err)
	}
}
