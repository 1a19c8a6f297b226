package resilience

import (
	"time"

	"github.com/rs/zerolog"
)

// Completion is the terminal result of a guarded worker, delivered on the
// Orphan channel when the worker outlives its guard.
type Completion struct {
	Value interface{}
	Err   error
}

// GuardResult is the outcome of a guarded invocation. When TimedOut is
// set the Value holds the guard's fallback and Orphan carries the
// abandoned worker's eventual completion; callers may await it or ignore
// it.
type GuardResult struct {
	Value    interface{}
	Err      error
	TimedOut bool
	Orphan   <-chan Completion
}

// TimeoutGuard bounds the caller's wait on a callable to a wall-clock
// limit. The guard is advisory for the worker: an overrunning worker
// goroutine is never cancelled, only abandoned. Guards are stateless
// value objects; every Run spawns one worker.
type TimeoutGuard struct {
	limit       time.Duration
	fallback    interface{}
	hasFallback bool

	logger   zerolog.Logger
	observer Observer
}

// GuardOption configures a TimeoutGuard at construction.
type GuardOption func(*TimeoutGuard)

// WithGuardFallback sets the value returned when the limit elapses, and
// when the worker itself faults within the limit.
func WithGuardFallback(v interface{}) GuardOption {
	return func(g *TimeoutGuard) {
		g.fallback = v
		g.hasFallback = true
	}
}

// WithGuardObserver attaches a policy observer.
func WithGuardObserver(o Observer) GuardOption {
	return func(g *TimeoutGuard) {
		if o != nil {
			g.observer = o
		}
	}
}

// NewTimeoutGuard builds a guard enforcing the given limit.
func NewTimeoutGuard(logger zerolog.Logger, limit time.Duration, opts ...GuardOption) *TimeoutGuard {
	g := &TimeoutGuard{
		limit:    limit,
		logger:   logger.With().Str("component", "timeout").Logger(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limit returns the configured wall-clock limit.
func (g *TimeoutGuard) Limit() time.Duration { return g.limit }

// Run starts fn on a worker goroutine and waits for its completion or
// the limit, whichever comes first. Within the limit, the worker's value
// is returned; a worker fault is replaced by the fallback when one is
// configured and propagated otherwise. Past the limit, a warning is
// logged and the fallback is returned immediately with TimedOut set; the
// worker keeps running and its result is delivered on Orphan.
func (g *TimeoutGuard) Run(operation string, fn Callable, args ...interface{}) GuardResult {
	started := time.Now()
	done := make(chan Completion, 1)

	go func() {
		value, err := safeInvoke(fn, args)
		done <- Completion{Value: value, Err: err}
	}()

	timer := time.NewTimer(g.limit)
	defer timer.Stop()

	select {
	case c := <-done:
		if c.Err != nil {
			if g.hasFallback {
				g.observer.ExecutionFinished(operation, StatusRecovered, time.Since(started))
				return GuardResult{Value: g.fallback}
			}
			g.observer.ExecutionFinished(operation, StatusFailed, time.Since(started))
			return GuardResult{Err: c.Err}
		}
		g.observer.ExecutionFinished(operation, StatusSucceeded, time.Since(started))
		return GuardResult{Value: c.Value}

	case <-timer.C:
		g.logger.Warn().
			Str("operation", operation).
			Dur("limit", g.limit).
			Msg("execution exceeded time limit, worker abandoned")
		g.observer.TimeoutExceeded(operation, g.limit)
		g.observer.ExecutionFinished(operation, StatusTimeout, time.Since(started))
		return GuardResult{Value: g.fallback, TimedOut: true, Orphan: done}
	}
}

// Wrap returns a callable that runs fn under the guard, flattening the
// GuardResult to the plain value-or-error shape. Used by the decoration
// engine to rebind capabilities; the timed-out marker and orphan handle
// are only available through Run.
func (g *TimeoutGuard) Wrap(operation string, fn Callable) Callable {
	return func(args ...interface{}) (interface{}, error) {
		res := g.Run(operation, fn, args...)
		return res.Value, res.Err
	}
}
