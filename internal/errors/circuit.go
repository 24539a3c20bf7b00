package errors

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State mirrors gobreaker.State with the vocabulary used by the rest of
// this package (closed/open/half-open).
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
		return "half-open"
	default:
		return "unknown"
	}
}

func fromGobreakerState(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitBreaker guards the cold store and disk backend against
// cascading failures by failing fast once a dependency trips past its
// failure threshold. It wraps sony/gobreaker, translating its counts-based
// ReadyToTrip policy into the simpler maxFailures/resetTimeout knobs the
// rest of the core configures.
type CircuitBreaker struct {
	name         string
	cb           *gobreaker.CircuitBreaker
	maxFailures  int
	resetTimeout time.Duration
}

// errRecordedFailure is the failure fed to gobreaker by RecordFailure.
var errRecordedFailure = errors.New("recorded failure")

// RecordFailure counts one failure against the breaker without running
// a guarded call.
func (cb *CircuitBreaker) RecordFailure() {
	_ = cb.Execute(func() error { return errRecordedFailure })
}

// RecordSuccess counts one success, resetting the consecutive-failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	_ = cb.Execute(func() error { return nil })
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*settings)

type settings struct {
	maxFailures  uint32
	resetTimeout time.Duration
}

// WithMaxFailures sets the number of consecutive failures before opening
// the circuit.
func WithMaxFailures(n int) CircuitBreakerOption {
	return func(s *settings) {
		s.maxFailures = uint32(n)
	}
}

// WithResetTimeout sets the time to wait before attempting recovery.
func WithResetTimeout(d time.Duration) CircuitBreakerOption {
	return func(s *settings) {
		s.resetTimeout = d
	}
}

// NewCircuitBreaker creates a new circuit breaker with the given name.
// Default: 5 consecutive failures, 30 second reset timeout.
func NewCircuitBreaker(name string, opts ...CircuitBreakerOption) *CircuitBreaker {
	s := &settings{maxFailures: 5, resetTimeout: 30 * time.Second}
	for _, opt := range opts {
		opt(s)
	}

	gb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: s.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.maxFailures
		},
	})

	return &CircuitBreaker{name: name, cb: gb, maxFailures: int(s.maxFailures), resetTimeout: s.resetTimeout}
}

// Name returns the circuit breaker name.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State returns the current circuit breaker state.
func (cb *CircuitBreaker) State() State {
	return fromGobreakerState(cb.cb.State())
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	return int(cb.cb.Counts().ConsecutiveFailures)
}

// Allow reports whether a request would currently be let through.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != StateOpen
}

// Execute runs fn through the circuit breaker. Returns ErrCircuitOpen if
// the circuit is open.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	_, err := cb.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrCircuitOpen
	}
	return err
}

// ExecuteWithResult runs fn through the circuit breaker; if the circuit
// is open or fn fails, fallback supplies the result instead.
func (cb *CircuitBreaker) ExecuteWithResult(fn func() (string, error), fallback func() (string, error)) (string, error) {
	result, err := cb.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return fallback()
	}
	return result.(string), nil
}

// CircuitExecuteWithResult is a generic helper for executing with a
// typed fallback when the breaker trips.
func CircuitExecuteWithResult[T any](cb *CircuitBreaker, fn func() (T, error), fallback func() (T, error)) (T, error) {
	result, err := cb.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		return fallback()
	}
	return result.(T), nil
}
