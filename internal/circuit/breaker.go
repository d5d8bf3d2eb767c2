// Package circuit implements a minimal circuit breaker used by the
// supervisor to stop hot-looping FuseServer restarts when the mount keeps
// failing for the same underlying reason (e.g. a target path that will
// never become mountable).
package circuit

import (
	"errors"
	"sync"
	"time"
)

// State is one of Closed, Open or HalfOpen.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures trip and recovery behavior.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays Open before allowing a trial request.
	OpenTimeout time.Duration
	// OnStateChange, if set, is invoked whenever the state transitions.
	OnStateChange func(from, to State)
}

// Breaker implements the circuit breaker pattern around a single guarded
// operation (in this module: "spawn and run one FuseServer iteration").
type Breaker struct {
	config Config

	mu                  sync.Mutex
	state               State
	consecutiveFailures uint32
	openUntil           time.Time
}

// New creates a Breaker, defaulting any unset Config fields.
func New(config Config) *Breaker {
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 60 * time.Second
	}
	return &Breaker{config: config, state: StateClosed}
}

// ErrOpen is returned by Allow when the breaker is rejecting attempts.
var ErrOpen = errors.New("circuit breaker open")

// Allow reports whether the next iteration may proceed, transitioning
// Open -> HalfOpen once the open timeout has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if time.Now().Before(b.openUntil) {
			return ErrOpen
		}
		b.transition(StateHalfOpen)
	}
	return nil
}

// RecordSuccess closes the breaker and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

// RecordFailure counts a failure, tripping the breaker open once the
// consecutive failure count reaches FailureThreshold (or immediately if the
// trial half-open request also failed).
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.openUntil = time.Now().Add(b.config.OpenTimeout)
		b.transition(StateOpen)
		return
	}

	b.consecutiveFailures++
	if b.consecutiveFailures >= b.config.FailureThreshold {
		b.openUntil = time.Now().Add(b.config.OpenTimeout)
		b.transition(StateOpen)
	}
}

// Current returns the current state.
func (b *Breaker) Current() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}
