package swarm

import (
	"fmt"
	"time"

	"github.com/sony/gobreaker"
)

// ErrorType classifies coordinator failures into distinct kinds, surfaced
// as typed values, never used for control flow via panics.
type ErrorType string

const (
	ErrPreconditionFailed  ErrorType = "precondition_failed"
	ErrCapacityExceeded    ErrorType = "capacity_exceeded"
	ErrTimeout             ErrorType = "timeout"
	ErrUnavailable         ErrorType = "unavailable"
	ErrDependencyUnsatisfied ErrorType = "dependency_unsatisfied"
	ErrIntegrationFailure  ErrorType = "integration_failure"
)

// SwarmError is the coordinator's typed error.
type SwarmError struct {
	Type        ErrorType
	Code        string
	Message     string
	Details     map[string]interface{}
	Timestamp   time.Time
	Cause       error
	Recoverable bool
}

func (e *SwarmError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Code, e.Message)
}

func (e *SwarmError) Unwrap() error { return e.Cause }

func newErr(t ErrorType, code, msg string) *SwarmError {
	return &SwarmError{Type: t, Code: code, Message: msg, Timestamp: time.Now(), Recoverable: t != ErrPreconditionFailed}
}

func preconditionErr(code, msg string) *SwarmError { return newErr(ErrPreconditionFailed, code, msg) }
func capacityErr(code, msg string) *SwarmError      { return newErr(ErrCapacityExceeded, code, msg) }
func timeoutErr(code, msg string) *SwarmError        { return newErr(ErrTimeout, code, msg) }
func unavailableErr(code, msg string) *SwarmError    { return newErr(ErrUnavailable, code, msg) }
func dependencyErr(code, msg string) *SwarmError {
	return newErr(ErrDependencyUnsatisfied, code, msg)
}
func integrationErr(code, msg string, cause error) *SwarmError {
	e := newErr(ErrIntegrationFailure, code, msg)
	e.Cause = cause
	return e
}

// RetryConfig bounds the message bus's retry behaviour for ack timeouts.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	BackoffFactor  float64
	RetryableTypes []ErrorType
}

// DefaultRetryConfig returns the nominal retry/backoff settings.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		RetryableTypes: []ErrorType{
			ErrTimeout, ErrIntegrationFailure, ErrUnavailable,
		},
	}
}

// backoff returns the delay before retry attempt n (1-indexed), bounded by
// MaxDelay.
func (r RetryConfig) backoff(attempt int) time.Duration {
	d := float64(r.InitialDelay)
	for i := 1; i < attempt; i++ {
		d *= r.BackoffFactor
	}
	if time.Duration(d) > r.MaxDelay {
		return r.MaxDelay
	}
	return time.Duration(d)
}

// newIntegrationBreaker wraps an optional external call (neural, memory) in
// a circuit breaker so a flapping backend degrades instead of blocking the
// Queen's main loop.
func newIntegrationBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
}
