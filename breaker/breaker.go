// Package breaker implements a per-pool circuit breaker: closed/open/
// half-open states gating calls after a run of consecutive failures.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is one of the three circuit-breaker states. Transitions are
// strictly closed -> open -> half_open -> (closed | open).
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures a Breaker's trip threshold and cooldown.
type Config struct {
	Threshold int
	Timeout   time.Duration
}

// Breaker is a thread-safe circuit breaker. Allow must be called before
// every guarded operation; RecordSuccess/RecordFailure report the outcome.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New builds a Breaker in the Closed state.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: Closed}
}

// ErrOpen is returned by Allow when the breaker is open (or half-open with
// a probe already in flight).
var ErrOpen = fmt.Errorf("breaker open")

// Allow reports whether a call may proceed. When the breaker is Open and
// the cooldown has elapsed, Allow transitions it to HalfOpen and lets
// exactly one caller through as the probe; any other concurrent caller
// during that window still sees ErrOpen.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.openedAt) < b.cfg.Timeout {
			return ErrOpen
		}
		b.state = HalfOpen
		b.probing = true
		return nil
	case HalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return ErrOpen
	}
}

// RecordSuccess reports a successful guarded call, closing the breaker and
// resetting its failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.probing = false
}

// RecordFailure reports a failed guarded call. In Closed, it increments the
// failure count and opens the breaker at Threshold. In HalfOpen, a failed
// probe reopens the breaker and restarts its cooldown timer.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.state = Open
			b.openedAt = time.Now()
		}
	case HalfOpen:
		b.state = Open
		b.openedAt = time.Now()
		b.probing = false
	case Open:
		b.openedAt = time.Now()
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the current consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
