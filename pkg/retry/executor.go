// Package retry provides error classification and bounded exponential-backoff
// retry for engine launch attempts and other transient-failure-prone calls.
//
// Failures classify into five kinds: network, timeout, and protocol errors
// are retryable; quota and fatal errors surface immediately. Backoff
// computation, classification, and jitter are each injectable so retry
// behavior is testable without real I/O.
package retry

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Policy bounds retry behavior.
type Policy struct {
	// MaxRetries is the number of retries after the first attempt, so an
	// operation runs at most MaxRetries+1 times.
	MaxRetries int

	// BaseDelay seeds the exponential backoff and bounds the jitter term.
	BaseDelay time.Duration

	// MaxDelay caps a single computed backoff delay. Zero means uncapped.
	MaxDelay time.Duration
}

// DefaultPolicy matches the configuration surface defaults.
var DefaultPolicy = Policy{
	MaxRetries: 3,
	BaseDelay:  time.Second,
	MaxDelay:   30 * time.Second,
}

// Backoff computes the delay before the retry following the given attempt
// (1-based): base * 2^(attempt-1) + jitter*base, capped at MaxDelay.
// jitter must lie in [0, 1).
func (p Policy) Backoff(attempt int, jitter float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.BaseDelay << uint(attempt-1)
	delay += time.Duration(jitter * float64(p.BaseDelay))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	return delay
}

// Executor runs operations under a retry policy.
type Executor struct {
	policy   Policy
	classify Classifier
	logger   *slog.Logger
	jitter   func() float64
}

// Option configures an Executor.
type Option func(*Executor)

// WithClassifier overrides the default error classifier.
func WithClassifier(c Classifier) Option {
	return func(e *Executor) { e.classify = c }
}

// WithJitter overrides the jitter source. Tests use a fixed value.
func WithJitter(f func() float64) Option {
	return func(e *Executor) { e.jitter = f }
}

// NewExecutor creates an executor with the given policy.
func NewExecutor(policy Policy, logger *slog.Logger, opts ...Option) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		policy:   policy,
		classify: Classify,
		logger:   logger,
		jitter:   rand.Float64,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the executor's policy.
func (e *Executor) Policy() Policy {
	return e.policy
}

// Do runs op, retrying retryable failures up to the policy limit. Between
// attempts it runs cleanup (release of any partially acquired resource)
// before sleeping out the backoff. Non-retryable failures and retry
// exhaustion return the classified error with the original cause intact.
func (e *Executor) Do(ctx context.Context, op func(context.Context) error, cleanup func()) error {
	_, err := DoValue(ctx, e, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, cleanup)
	return err
}

// DoValue is Do for operations that produce a value.
func DoValue[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error), cleanup func()) (T, error) {
	var zero T
	var lastErr error

	maxAttempts := e.policy.MaxRetries + 1
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}

		kind := e.classify(err)
		lastErr = Classified(kind, err)

		if !kind.Retryable() || attempt == maxAttempts {
			return zero, lastErr
		}

		if cleanup != nil {
			cleanup()
		}

		delay := e.policy.Backoff(attempt, e.jitter())
		e.logger.Debug("retrying after failure",
			"attempt", attempt,
			"kind", string(kind),
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return zero, Classified(e.classify(ctx.Err()), ctx.Err())
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}
