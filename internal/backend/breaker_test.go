package backend

import (
	"errors"
	"testing"
	"time"

	"github.com/pitabwire/salespanel/internal/config"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(cfg config.CircuitBreakerConfig) (*Breaker, *fakeClock, *[]BreakerState) {
	clock := &fakeClock{t: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	var transitions []BreakerState
	b := NewBreaker(cfg, func(s BreakerState) { transitions = append(transitions, s) })
	b.now = clock.now
	b.windowStart = clock.now()
	return b, clock, &transitions
}

func TestBreaker_startsClosed(t *testing.T) {
	b, _, _ := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 3})

	if s := b.State(); s != BreakerClosed {
		t.Errorf("initial state = %v, want closed", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() error = %v, want nil", err)
	}
}

func TestBreaker_opensAfterThreshold(t *testing.T) {
	b, _, transitions := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 3})

	b.Failure()
	b.Failure()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state after 2 failures = %v, want closed", s)
	}

	b.Failure()
	if s := b.State(); s != BreakerOpen {
		t.Errorf("state after 3 failures = %v, want open", s)
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow() error = %v, want ErrCircuitOpen", err)
	}
	if len(*transitions) != 1 || (*transitions)[0] != BreakerOpen {
		t.Errorf("transitions = %v, want [open]", *transitions)
	}
}

func TestBreaker_successResetsFailureCount(t *testing.T) {
	b, _, _ := newTestBreaker(config.CircuitBreakerConfig{FailureThreshold: 3})

	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()

	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed", s)
	}
}

func TestBreaker_halfOpenAfterTimeout(t *testing.T) {
	b, clock, _ := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second,
	})

	b.Failure()
	clock.advance(500 * time.Millisecond)
	if s := b.State(); s != BreakerOpen {
		t.Fatalf("state before timeout = %v, want open", s)
	}

	clock.advance(time.Second)
	if s := b.State(); s != BreakerHalfOpen {
		t.Errorf("state after timeout = %v, want half-open", s)
	}
	if err := b.Allow(); err != nil {
		t.Errorf("Allow() in half-open = %v, want nil", err)
	}
}

func TestBreaker_halfOpenClosesAfterSuccesses(t *testing.T) {
	b, clock, transitions := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second,
	})

	b.Failure()
	clock.advance(2 * time.Second)
	_ = b.Allow()

	b.Success()
	if s := b.State(); s != BreakerHalfOpen {
		t.Errorf("state after 1 probe = %v, want half-open", s)
	}
	b.Success()
	if s := b.State(); s != BreakerClosed {
		t.Errorf("state after 2 probes = %v, want closed", s)
	}

	want := []BreakerState{BreakerOpen, BreakerHalfOpen, BreakerClosed}
	if len(*transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", *transitions, want)
	}
	for i := range want {
		if (*transitions)[i] != want[i] {
			t.Errorf("transition[%d] = %v, want %v", i, (*transitions)[i], want[i])
		}
	}
}

func TestBreaker_halfOpenFailureReopens(t *testing.T) {
	b, clock, _ := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second,
	})

	b.Failure()
	clock.advance(2 * time.Second)
	_ = b.Allow()
	b.Failure()

	if s := b.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open", s)
	}
}

func TestBreaker_errorRateTrips(t *testing.T) {
	b, _, _ := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold:   100,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	// Alternate so the consecutive count never builds up.
	for i := 0; i < 9; i++ {
		if i%2 == 0 {
			b.Success()
		} else {
			b.Failure()
		}
	}
	if s := b.State(); s != BreakerClosed {
		t.Fatalf("state below minimum samples = %v, want closed", s)
	}

	b.Failure()
	b.Failure()
	if s := b.State(); s != BreakerOpen {
		t.Errorf("state = %v, want open once the rate reaches the threshold", s)
	}
}

func TestBreaker_errorRateWindowRolls(t *testing.T) {
	b, clock, _ := newTestBreaker(config.CircuitBreakerConfig{
		FailureThreshold:   100,
		ErrorRateThreshold: 0.5,
		ErrorRateWindow:    time.Minute,
	})

	// 4 of 9 failed: one more failure in this window would trip.
	for i := 0; i < 5; i++ {
		b.Success()
	}
	for i := 0; i < 4; i++ {
		b.Failure()
	}
	clock.advance(2 * time.Minute)
	b.Failure()

	if s := b.State(); s != BreakerClosed {
		t.Errorf("state = %v, want closed after the window rolled", s)
	}
}

func TestBreakerState_String(t *testing.T) {
	tests := []struct {
		state BreakerState
		want  string
	}{
		{BreakerClosed, "closed"},
		{BreakerHalfOpen, "half-open"},
		{BreakerOpen, "open"},
		{BreakerState(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
