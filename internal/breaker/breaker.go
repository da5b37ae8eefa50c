// Package breaker guards calls to a flaky dependency (an exchange venue, the
// redis activity stream) with a consecutive-failure circuit breaker.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed   State = 0 // Normal operation, requests pass through
	StateOpen     State = 1 // Circuit tripped, requests rejected immediately
	StateHalfOpen State = 2 // Testing, one request allowed through to probe
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned when the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// Breaker implements a simple circuit breaker pattern.
// After maxFailures consecutive failures, the breaker opens and rejects all
// calls for resetTimeout. After the timeout, it enters half-open state and
// allows one probe call through. If the probe succeeds, the breaker closes;
// if it fails, it reopens.
type Breaker struct {
	name string

	mu           sync.Mutex
	state        State
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
	probing      bool

	// Trips decides which errors count as failures. Nil counts every error.
	// Errors that do not trip still pass through to the caller.
	Trips func(error) bool

	// OnStateChange is called on state transitions, under the breaker lock.
	OnStateChange func(name string, from, to State)

	now func() time.Time
}

// New creates a circuit breaker.
// maxFailures: consecutive failures before opening (e.g., 5)
// resetTimeout: time to wait before half-open probe (e.g., 30s)
func New(name string, maxFailures int, resetTimeout time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
	}
}

// Name returns the guarded dependency's label.
func (b *Breaker) Name() string { return b.name }

// Execute runs fn through the circuit breaker.
// Returns ErrOpen if the breaker is open and the timeout hasn't elapsed.
func (b *Breaker) Execute(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) > b.resetTimeout {
			b.transition(StateHalfOpen)
			b.probing = true
		} else {
			b.mu.Unlock()
			return ErrOpen
		}
	case StateHalfOpen:
		if b.probing {
			b.mu.Unlock()
			return ErrOpen
		}
		b.probing = true
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false

	if err != nil && (b.Trips == nil || b.Trips(err)) {
		b.failures++
		b.lastFailure = b.now()

		if b.state == StateHalfOpen {
			// Probe failed, reopen
			b.transition(StateOpen)
		} else if b.failures >= b.maxFailures {
			b.transition(StateOpen)
		}
		return err
	}

	// The dependency answered, even if with a non-tripping error.
	if b.state == StateHalfOpen {
		b.transition(StateClosed)
	}
	b.failures = 0
	return err
}

// CurrentState returns the current circuit breaker state.
func (b *Breaker) CurrentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if to == StateClosed {
		b.failures = 0
	}
	if b.OnStateChange != nil && from != to {
		b.OnStateChange(b.name, from, to)
	}
}
