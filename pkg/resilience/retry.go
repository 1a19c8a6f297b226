package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// RetryPolicy re-attempts a failing operation with a configurable delay,
// backoff multiplier, fault filter, and fallback value. Policies are
// immutable once built and safe for concurrent use.
type RetryPolicy struct {
	maxAttempts   int
	initialDelay  time.Duration
	backoffFactor float64
	matchedKinds  map[string]struct{}
	fallback      interface{}
	hasFallback   bool

	logger   zerolog.Logger
	observer Observer
}

// RetryOption configures a RetryPolicy at construction.
type RetryOption func(*RetryPolicy)

// WithMaxAttempts sets the total attempt budget. Values below one mean
// retry forever.
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) { p.maxAttempts = n }
}

// WithDelay sets the delay before the first retry.
func WithDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) { p.initialDelay = d }
}

// WithBackoff sets the multiplier applied to the delay after every retry.
// Factors below 1.0 are clamped to 1.0.
func WithBackoff(factor float64) RetryOption {
	return func(p *RetryPolicy) {
		if factor < 1.0 {
			factor = 1.0
		}
		p.backoffFactor = factor
	}
}

// WithMatchedKinds restricts retrying to faults of the given kinds.
// Without this option every fault kind is eligible.
func WithMatchedKinds(kinds ...string) RetryOption {
	return func(p *RetryPolicy) { p.matchedKinds = kindSet(kinds) }
}

// WithFallback sets the value returned after the retry budget is
// exhausted instead of re-raising the last fault.
func WithFallback(v interface{}) RetryOption {
	return func(p *RetryPolicy) {
		p.fallback = v
		p.hasFallback = true
	}
}

// WithObserver attaches a policy observer.
func WithObserver(o Observer) RetryOption {
	return func(p *RetryPolicy) {
		if o != nil {
			p.observer = o
		}
	}
}

// NewRetryPolicy builds a retry policy. Defaults: 3 attempts, one second
// initial delay, no backoff growth, all fault kinds matched, no fallback.
func NewRetryPolicy(logger zerolog.Logger, opts ...RetryOption) *RetryPolicy {
	p := &RetryPolicy{
		maxAttempts:   3,
		initialDelay:  time.Second,
		backoffFactor: 1.0,
		logger:        logger.With().Str("component", "retry").Logger(),
		observer:      NopObserver{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// MaxAttempts returns the configured attempt budget.
func (p *RetryPolicy) MaxAttempts() int { return p.maxAttempts }

// InitialDelay returns the delay before the first retry.
func (p *RetryPolicy) InitialDelay() time.Duration { return p.initialDelay }

// BackoffFactor returns the delay multiplier.
func (p *RetryPolicy) BackoffFactor() float64 { return p.backoffFactor }

// Matches reports whether err's kind is eligible for retry under this
// policy.
func (p *RetryPolicy) Matches(err error) bool {
	return matchesKind(p.matchedKinds, err)
}

// Do runs fn under the policy. Unmatched faults propagate immediately
// without consuming the attempt budget. Matched faults trigger a sleep
// and a re-attempt while budget remains; when the budget is exhausted the
// fallback is returned if configured, otherwise the last fault is
// re-raised unchanged. A cancelled context aborts the sleep between
// attempts.
func (p *RetryPolicy) Do(ctx context.Context, operation string, fn Callable, args ...interface{}) (interface{}, error) {
	started := time.Now()
	delay := p.initialDelay

	for attempt := 1; ; attempt++ {
		value, err := safeInvoke(fn, args)
		if err == nil {
			p.observer.ExecutionFinished(operation, StatusSucceeded, time.Since(started))
			return value, nil
		}

		if !p.Matches(err) {
			p.observer.ExecutionFinished(operation, StatusFailed, time.Since(started))
			return nil, err
		}

		if p.maxAttempts >= 1 && attempt >= p.maxAttempts {
			p.logger.Error().
				Str("operation", operation).
				Int("attempts", attempt).
				Err(err).
				Msg("all attempts failed")
			p.observer.RetriesExhausted(operation)

			if p.hasFallback {
				p.observer.ExecutionFinished(operation, StatusRecovered, time.Since(started))
				return p.fallback, nil
			}
			p.observer.ExecutionFinished(operation, StatusFailed, time.Since(started))
			return nil, err
		}

		p.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Interface("fallback", p.fallback).
			Err(err).
			Msg("attempt failed, retrying")
		p.observer.RetryAttempt(operation, attempt, delay)

		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
		delay = time.Duration(float64(delay) * p.backoffFactor)
	}
}

// Wrap returns a callable that runs fn under the policy with a background
// context. Used by the decoration engine to rebind capabilities.
func (p *RetryPolicy) Wrap(operation string, fn Callable) Callable {
	return func(args ...interface{}) (interface{}, error) {
		return p.Do(context.Background(), operation, fn, args...)
	}
}

// sleep blocks for d or until ctx is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
