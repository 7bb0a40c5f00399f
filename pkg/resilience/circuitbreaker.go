package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"context-teleporter/backend/pkg/logger"
)

// ErrCircuitOpen is returned without calling the guarded function.
var ErrCircuitOpen = errors.New("circuit open")

// State of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds configuration for a circuit breaker
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint
	// SuccessThreshold successes while half-open close it again.
	SuccessThreshold uint
	// OpenFor is how long the circuit stays open before probing.
	OpenFor time.Duration
}

// DefaultConfig returns the settings used for calls to the auth service.
func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 1,
		OpenFor:          30 * time.Second,
	}
}

// CircuitBreaker stops calling a failing dependency for a while so that
// callers fail fast instead of queuing behind timeouts.
type CircuitBreaker struct {
	name             string
	failureThreshold uint
	successThreshold uint
	openFor          time.Duration
	log              *logger.Logger
	now              func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    uint
	successCount    uint
	halfOpenInUse   bool
	nextAttemptTime time.Time
	totalFailures   uint64
	totalSuccesses  uint64
	totalRejected   uint64
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{
		name:             cfg.Name,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		openFor:          cfg.OpenFor,
		log:              log,
		now:              time.Now,
		state:            StateClosed,
	}
}

// Execute runs fn unless the circuit is open. A canceled ctx is not counted
// as a failure of the dependency.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if !cb.allowRequest() {
		cb.log.Debug("Circuit breaker rejected call", "name", cb.name)
		return ErrCircuitOpen
	}

	startTime := cb.now()
	err := fn(ctx)

	switch {
	case err == nil:
		cb.recordSuccess()
	case ctx.Err() != nil:
		cb.release()
	default:
		cb.recordFailure()
		cb.log.Warn("Circuit breaker recorded failure",
			"name", cb.name,
			"error", err.Error(),
			"duration", cb.now().Sub(startTime).String(),
		)
	}
	return err
}

func (cb *CircuitBreaker) allowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Before(cb.nextAttemptTime) {
			cb.totalRejected++
			return false
		}
		cb.toHalfOpen()
		cb.halfOpenInUse = true
		return true
	case StateHalfOpen:
		// one probe at a time
		if cb.halfOpenInUse {
			cb.totalRejected++
			return false
		}
		cb.halfOpenInUse = true
		return true
	}
	return false
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.halfOpenInUse = false
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalSuccesses++
	cb.halfOpenInUse = false

	switch cb.state {
	case StateClosed:
		cb.failureCount = 0
	case StateHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.toClosed()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalFailures++
	cb.halfOpenInUse = false

	switch cb.state {
	case StateClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.toOpen()
		}
	case StateHalfOpen:
		cb.toOpen()
	}
}

func (cb *CircuitBreaker) toOpen() {
	cb.state = StateOpen
	cb.nextAttemptTime = cb.now().Add(cb.openFor)

	cb.log.Warn("Circuit breaker opened",
		"name", cb.name,
		"failures", cb.failureCount,
		"next_attempt", cb.nextAttemptTime.Format(time.RFC3339),
	)
}

func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.successCount = 0

	cb.log.Info("Circuit breaker half-open", "name", cb.name)
}

func (cb *CircuitBreaker) toClosed() {
	cb.state = StateClosed
	cb.failureCount = 0
	cb.successCount = 0

	cb.log.Info("Circuit breaker closed", "name", cb.name)
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a snapshot of the breaker's counters.
type Stats struct {
	Name      string `json:"name"`
	State     State  `json:"state"`
	Failures  uint64 `json:"total_failures"`
	Successes uint64 `json:"total_successes"`
	Rejected  uint64 `json:"total_rejected"`
}

// Stats returns the current counters.
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:      cb.name,
		State:     cb.state,
		Failures:  cb.totalFailures,
		Successes: cb.totalSuccesses,
		Rejected:  cb.totalRejected,
	}
}
