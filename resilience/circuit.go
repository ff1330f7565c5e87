package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// State is the position of a service's circuit.
type State int

const (
	// StateClosed admits every call.
	StateClosed State = iota
	// StateOpen rejects calls until the reset timeout has passed.
	StateOpen
	// StateHalfOpen admits a limited number of probe calls.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

// String returns the lowercase state name.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Transition describes one change of circuit state.
type Transition struct {
	Service string
	From    State
	To      State
	At      time.Time

	// Outages is the consecutive outage count at the moment of the change.
	Outages int
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// Service names the guarded service in errors and transitions.
	Service string

	// MaxFailures is the number of consecutive outages that opens the circuit.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// MaxProbes is the number of concurrent calls admitted while half-open.
	// Default: 1
	MaxProbes int

	// OnStateChange receives every transition. It is called without the
	// breaker's lock held.
	OnStateChange func(Transition)

	// IsFailure reports whether err counts as an outage.
	// Default: IsOutage
	IsFailure func(err error) bool

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time
}

// IsOutage reports whether err looks like the provider being unavailable.
// Auth, quota and data errors say nothing about availability and do not count.
func IsOutage(err error) bool {
	if err == nil {
		return false
	}
	kind := ClassifyError(err).Kind
	return kind == KindNetwork || kind == KindTimeout
}

// CircuitBreaker stops calling a service after consecutive outages and
// probes it again once the reset timeout has passed.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Errors: rejected calls return an error wrapping ErrCircuitOpen; other
//     errors are returned from the operation unchanged.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu       sync.Mutex
	state    State
	outages  int
	probes   int
	trips    int
	openedAt time.Time
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.MaxProbes <= 0 {
		config.MaxProbes = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = IsOutage
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit rejects it, then records the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current state, moving an expired open circuit to half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	t := cb.advanceLocked(cb.config.Now())
	state := cb.state
	cb.mu.Unlock()

	cb.notify(t)
	return state
}

// Reset closes the circuit and clears the outage count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	t := cb.moveLocked(StateClosed, cb.config.Now())
	cb.outages = 0
	cb.mu.Unlock()

	cb.notify(t)
}

// CircuitSnapshot is a point-in-time view of a breaker.
type CircuitSnapshot struct {
	Service string
	State   State

	// Outages is the current run of consecutive outages.
	Outages int

	// Trips counts how often the circuit has opened.
	Trips int

	// OpenedAt is when the circuit last opened; zero if it never has.
	OpenedAt time.Time
}

// Snapshot returns the breaker's current counters.
func (cb *CircuitBreaker) Snapshot() CircuitSnapshot {
	cb.mu.Lock()
	t := cb.advanceLocked(cb.config.Now())
	snap := CircuitSnapshot{
		Service:  cb.config.Service,
		State:    cb.state,
		Outages:  cb.outages,
		Trips:    cb.trips,
		OpenedAt: cb.openedAt,
	}
	cb.mu.Unlock()

	cb.notify(t)
	return snap
}

func (cb *CircuitBreaker) admit() error {
	now := cb.config.Now()

	cb.mu.Lock()
	t := cb.advanceLocked(now)
	var err error
	switch cb.state {
	case StateOpen:
		wait := cb.config.ResetTimeout - now.Sub(cb.openedAt)
		err = fmt.Errorf("%w: %s after %d outages, probing in %s",
			ErrCircuitOpen, cb.label(), cb.outages, wait.Round(time.Millisecond))
	case StateHalfOpen:
		if cb.probes >= cb.config.MaxProbes {
			err = fmt.Errorf("%w: %s probe in flight", ErrCircuitOpen, cb.label())
		} else {
			cb.probes++
		}
	}
	cb.mu.Unlock()

	cb.notify(t)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	outage := cb.config.IsFailure(err)
	now := cb.config.Now()

	cb.mu.Lock()
	var t *Transition
	switch cb.state {
	case StateClosed:
		if !outage {
			cb.outages = 0
			break
		}
		cb.outages++
		if cb.outages >= cb.config.MaxFailures {
			t = cb.moveLocked(StateOpen, now)
		}
	case StateHalfOpen:
		if outage {
			cb.outages++
			t = cb.moveLocked(StateOpen, now)
		} else {
			t = cb.moveLocked(StateClosed, now)
			cb.outages = 0
		}
	}
	// Results that land while open came from calls admitted before the trip.
	cb.mu.Unlock()

	cb.notify(t)
}

// advanceLocked moves an open circuit to half-open once ResetTimeout elapsed.
func (cb *CircuitBreaker) advanceLocked(now time.Time) *Transition {
	if cb.state != StateOpen || now.Sub(cb.openedAt) < cb.config.ResetTimeout {
		return nil
	}
	return cb.moveLocked(StateHalfOpen, now)
}

func (cb *CircuitBreaker) moveLocked(to State, now time.Time) *Transition {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to
	cb.probes = 0
	if to == StateOpen {
		cb.openedAt = now
		cb.trips++
	}
	return &Transition{
		Service: cb.config.Service,
		From:    from,
		To:      to,
		At:      now,
		Outages: cb.outages,
	}
}

func (cb *CircuitBreaker) notify(t *Transition) {
	if t != nil && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(*t)
	}
}

func (cb *CircuitBreaker) label() string {
	if cb.config.Service == "" {
		return "service"
	}
	return cb.config.Service
}
