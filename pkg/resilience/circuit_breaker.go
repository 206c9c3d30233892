// Package resilience guards calls to collaborator services with a circuit
// breaker (sony/gobreaker) and exponential retries (cenkalti/backoff).
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the breaker state as exported to metrics
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func stateOf(s gobreaker.State) State {
	switch s {
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	case gobreaker.StateOpen:
		return StateOpen
	default:
		return StateClosed
	}
}

func (s State) String() string {
	switch s {
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig holds configuration for a circuit breaker
type CircuitBreakerConfig struct {
	Name string
	// MaxRequests is how many probes pass while half-open
	MaxRequests uint32
	// Interval clears the closed-state counts; zero never clears them
	Interval time.Duration
	// Timeout is how long the breaker stays open
	Timeout time.Duration

	FailureThreshold      uint32
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32

	// OnStateChange receives the new state as an int so it can feed a gauge
	OnStateChange func(name string, state int)
	// IsSuccessful decides which errors count against the breaker
	IsSuccessful func(err error) bool
}

// DefaultCircuitBreakerConfig returns the default breaker settings
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           DefaultMaxRequests,
		Interval:              DefaultInterval,
		Timeout:               DefaultTimeout,
		FailureThreshold:      DefaultFailureThreshold,
		FailureRatioThreshold: DefaultFailureRatioThreshold,
		MinRequestsToTrip:     DefaultMinRequestsToTrip,
	}
}

// shouldTrip opens the breaker on a failure streak, or on a high failure
// ratio once enough requests were seen
func (c *CircuitBreakerConfig) shouldTrip(counts gobreaker.Counts) bool {
	if counts.ConsecutiveFailures >= c.FailureThreshold {
		return true
	}
	if counts.Requests < c.MinRequestsToTrip || counts.Requests == 0 {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatioThreshold
}

// CircuitBreaker wraps gobreaker, logging transitions and rejections
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewCircuitBreaker creates a new circuit breaker
func NewCircuitBreaker(config *CircuitBreakerConfig, logger *slog.Logger) *CircuitBreaker {
	logger = logger.With("breaker", config.Name)
	settings := gobreaker.Settings{
		Name:         config.Name,
		MaxRequests:  config.MaxRequests,
		Interval:     config.Interval,
		Timeout:      config.Timeout,
		ReadyToTrip:  config.shouldTrip,
		IsSuccessful: config.IsSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed", "from", stateOf(from).String(), "to", stateOf(to).String())
			if config.OnStateChange != nil {
				config.OnStateChange(name, int(stateOf(to)))
			}
		},
	}
	return &CircuitBreaker{cb: gobreaker.NewCircuitBreaker(settings), logger: logger}
}

// Execute runs fn through the breaker. Rejections wrap ErrCircuitOpen.
func (c *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := c.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Circuit breaker rejected call", "reason", err.Error())
		return nil, fmt.Errorf("%s: %w", c.cb.Name(), ErrCircuitOpen)
	}
	return result, err
}

// State returns the current breaker state
func (c *CircuitBreaker) State() State {
	return stateOf(c.cb.State())
}

// Name returns the circuit breaker name
func (c *CircuitBreaker) Name() string {
	return c.cb.Name()
}
