package backend

import (
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/salespanel/internal/config"
)

// ErrCircuitOpen is returned without contacting the backend while its
// breaker is open.
var ErrCircuitOpen = errors.New("backend: circuit breaker is open")

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	// BreakerClosed lets every call through and counts failures.
	BreakerClosed BreakerState = iota
	// BreakerHalfOpen lets probe calls through until enough succeed.
	BreakerHalfOpen
	// BreakerOpen rejects every call until the open timeout elapses.
	BreakerOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// minRateSamples is the number of calls a window needs before its error rate
// can trip the breaker.
const minRateSamples = 10

// Breaker guards one backend. It trips on consecutive failures or on the
// error rate of a tumbling window and is safe for concurrent use.
type Breaker struct {
	mu       sync.Mutex
	cfg      config.CircuitBreakerConfig
	state    BreakerState
	failures int
	probes   int
	openedAt time.Time

	windowStart    time.Time
	windowCalls    int
	windowFailures int

	onChange func(BreakerState)
	now      func() time.Time
}

// NewBreaker creates a closed breaker. Zero thresholds fall back to 5
// consecutive failures, 2 half-open successes and a 30s open timeout.
// onChange, when non-nil, is called with the lock held on every transition.
func NewBreaker(cfg config.CircuitBreakerConfig, onChange func(BreakerState)) *Breaker {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold < 1 {
		cfg.SuccessThreshold = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	b := &Breaker{cfg: cfg, onChange: onChange, now: time.Now}
	b.windowStart = b.now()
	return b
}

// Allow returns ErrCircuitOpen while the breaker is open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireOpen()
	if b.state == BreakerOpen {
		return ErrCircuitOpen
	}
	return nil
}

// Success records a call that reached the backend and was served.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures = 0
		b.countCall(false)
	case BreakerHalfOpen:
		b.probes++
		if b.probes >= b.cfg.SuccessThreshold {
			b.failures = 0
			b.resetWindow()
			b.transition(BreakerClosed)
		}
	}
}

// Failure records a transport failure or a 5xx answer.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		b.failures++
		b.countCall(true)
		if b.failures >= b.cfg.FailureThreshold || b.rateExceeded() {
			b.trip()
		}
	case BreakerHalfOpen:
		b.trip()
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireOpen()
	return b.state
}

func (b *Breaker) trip() {
	b.openedAt = b.now()
	b.probes = 0
	b.resetWindow()
	b.transition(BreakerOpen)
}

func (b *Breaker) expireOpen() {
	if b.state == BreakerOpen && b.now().Sub(b.openedAt) > b.cfg.Timeout {
		b.probes = 0
		b.transition(BreakerHalfOpen)
	}
}

func (b *Breaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	b.state = to
	if b.onChange != nil {
		b.onChange(to)
	}
}

func (b *Breaker) countCall(failed bool) {
	if b.cfg.ErrorRateWindow <= 0 {
		return
	}
	if b.now().Sub(b.windowStart) > b.cfg.ErrorRateWindow {
		b.resetWindow()
	}
	b.windowCalls++
	if failed {
		b.windowFailures++
	}
}

func (b *Breaker) resetWindow() {
	b.windowStart = b.now()
	b.windowCalls = 0
	b.windowFailures = 0
}

func (b *Breaker) rateExceeded() bool {
	if b.cfg.ErrorRateThreshold <= 0 || b.cfg.ErrorRateWindow <= 0 {
		return false
	}
	if b.windowCalls < minRateSamples {
		return false
	}
	return float64(b.windowFailures)/float64(b.windowCalls) >= b.cfg.ErrorRateThreshold
}
