// Package resilience provides the fault-tolerance building blocks the
// services share: a circuit breaker, capped exponential backoff with
// jitter, and a deadline wrapper for fan-out calls.
package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of running the callback while the
// breaker is refusing traffic.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker phase. The numeric values feed a Prometheus gauge,
// so the ordering closed=0, open=1, half-open=2 is part of the contract.
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

// CircuitBreakerConfig tunes when the breaker trips and how it probes for
// recovery. Zero values mean 5 consecutive failures to open, a 30s cooling
// period, and a single half-open probe at a time.
type CircuitBreakerConfig struct {
	FailureThreshold    int
	ResetTimeout        time.Duration
	HalfOpenMaxRequests int
}

func (cfg CircuitBreakerConfig) withDefaults() CircuitBreakerConfig {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 1
	}
	return cfg
}

// CircuitBreaker shields a dependency that keeps failing. It counts
// consecutive failures while closed, opens once the threshold is hit, and
// after the cooling period admits a bounded number of probes to decide
// whether to close again.
type CircuitBreaker struct {
	name string
	cfg  CircuitBreakerConfig
	log  *slog.Logger

	mu       sync.Mutex
	state    State
	failures int       // consecutive, cleared on any success
	openedAt time.Time // last transition into StateOpen
	probes   int       // half-open requests admitted so far
}

// NewCircuitBreaker creates a closed breaker, filling config defaults for
// zero values.
func NewCircuitBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		name: name,
		cfg:  cfg.withDefaults(),
		log:  slog.Default().With("component", "circuit-breaker", "name", name),
	}
}

// Execute runs fn when the breaker admits it and feeds the outcome back
// into the state machine. The error from fn is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn()
	cb.record(err)
	return err
}

// GetState reports the current phase.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Reset forces the breaker closed, dropping all failure history.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.toClosed("manual reset")
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		remaining := cb.cfg.ResetTimeout - time.Since(cb.openedAt)
		if remaining > 0 {
			return fmt.Errorf("%w: %s (retry in %v)", ErrCircuitOpen, cb.name, remaining.Round(time.Millisecond))
		}
		cb.state = StateHalfOpen
		cb.probes = 0
		cb.log.Info("circuit half-open, probing", "cooled_for", cb.cfg.ResetTimeout)
		fallthrough
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenMaxRequests {
			return fmt.Errorf("%w: %s (probe slots taken)", ErrCircuitOpen, cb.name)
		}
		cb.probes++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err == nil {
		switch cb.state {
		case StateClosed:
			cb.failures = 0
		case StateHalfOpen:
			cb.toClosed("probe succeeded")
		}
		return
	}

	cb.failures++
	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.openedAt = time.Now()
	cb.log.Warn("circuit opened",
		"consecutive_failures", cb.failures,
		"threshold", cb.cfg.FailureThreshold,
	)
}

func (cb *CircuitBreaker) toClosed(reason string) {
	cb.state = StateClosed
	cb.failures = 0
	cb.probes = 0
	cb.log.Info("circuit closed", "reason", reason)
}
