// Package resilience provides fault-tolerance primitives for calls to Redis,
// Postgres and Kafka: a circuit breaker, backoff retry and deadline wrappers.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned without calling the dependency while the
// breaker is open or its half-open probes are all in flight.
var ErrCircuitOpen = errors.New("circuit breaker is open")

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

// CircuitBreakerConfig controls when the breaker trips and how it recovers.
//
// HalfOpenMaxRequests is both the number of probes admitted after
// ResetTimeout and the number of consecutive probe successes needed to
// close again. IsFailure decides which errors count against the dependency;
// by default every error except context.Canceled does. Errors it rejects
// are neutral: they neither trip nor heal the breaker. OnStateChange runs
// outside the lock with the net transition of one call.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
	IsFailure           func(error) bool
	OnStateChange       func(name string, from, to State)
}

func countsAsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

type CircuitBreaker struct {
	name   string
	cfg    CircuitBreakerConfig
	logger *slog.Logger

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	probes    int
	successes int
}

// NewCircuitBreaker fills zero config fields with defaults: 5 failures,
// 30s reset timeout, one probe.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = countsAsFailure
	}
	return &CircuitBreaker{
		name:   name,
		cfg:    cfg,
		logger: slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn if the breaker admits it and records the outcome.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	from, err := cb.admit()
	if err != nil {
		return err
	}
	err = fn()
	cb.notify(from, cb.record(err))
	return err
}

// GetState returns the current state. An open breaker whose timeout has
// passed still reports open until the next call probes it.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.state
	cb.state = StateClosed
	cb.failures, cb.probes, cb.successes = 0, 0, 0
	cb.mu.Unlock()
	cb.logger.Info("circuit manually reset")
	cb.notify(from, StateClosed)
}

func (cb *CircuitBreaker) admit() (State, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	from := cb.state
	if cb.state == StateOpen {
		wait := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if wait > 0 {
			return from, fmt.Errorf("%w: %s (retry after %v)", ErrCircuitOpen, cb.name, wait.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.probes, cb.successes = 0, 0
		cb.logger.Info("circuit half-open, probing", "after", cb.cfg.ResetTimeout)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return from, fmt.Errorf("%w: %s (probe in flight)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return from, nil
}

// record applies the outcome of an admitted call and returns the new state.
func (cb *CircuitBreaker) record(err error) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil && !cb.cfg.IsFailure(err) {
		if cb.state == StateHalfOpen {
			cb.probes--
		}
		return cb.state
	}
	failed := err != nil

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			break
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.logger.Warn("circuit opened", "consecutive_failures", cb.failures, "threshold", cb.cfg.FailureThreshold)
			cb.trip()
		}
	case StateHalfOpen:
		if failed {
			cb.logger.Warn("circuit re-opened, probe failed", "error", err)
			cb.trip()
			break
		}
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMaxRequests {
			cb.state = StateClosed
			cb.failures, cb.probes, cb.successes = 0, 0, 0
			cb.logger.Info("circuit closed, dependency recovered")
		}
	}
	return cb.state
}

func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.failures, cb.probes, cb.successes = 0, 0, 0
}

func (cb *CircuitBreaker) notify(from, to State) {
	if to != from && cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}
