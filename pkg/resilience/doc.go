// Package resilience implements the wrapping policies of Bulwark: retry
// with backoff, single-shot fault handling, and wall-clock timeout
// enforcement.
//
// All policies operate on the same callable shape and share a small
// taxonomy of behavior:
//
//   - Matched faults (kind listed in the policy's filter, or any kind
//     when the filter is empty) are recovered locally: retried, replaced
//     by a fallback, or both.
//   - Unmatched faults propagate immediately without consuming any retry
//     budget, identical in kind and message to what the undecorated
//     operation would have produced.
//   - Timeouts are not faults: the guard returns its fallback and marks
//     the result as timed out, while the worker keeps running.
//
// # Retry
//
//	policy := resilience.NewRetryPolicy(logger,
//	    resilience.WithMaxAttempts(3),
//	    resilience.WithDelay(time.Second),
//	    resilience.WithBackoff(2.0),
//	    resilience.WithMatchedKinds("Unavailable"))
//
//	value, err := policy.Do(ctx, "fetch", fetch)
//
// A MaxAttempts below one retries forever. The delay between attempts is
// multiplied by the backoff factor after every retry, and the sleep is
// context-aware: cancelling the context aborts the wait.
//
// # Timeout
//
//	guard := resilience.NewTimeoutGuard(logger, 200*time.Millisecond,
//	    resilience.WithGuardFallback("late"))
//
//	res := guard.Run("slow-op", slow)
//	if res.TimedOut {
//	    // the worker was abandoned; await it via res.Orphan if needed
//	}
//
// The guard bounds the caller's wait, not the work: an overrunning worker
// goroutine is never cancelled. Its eventual completion is delivered on
// the Orphan channel so callers can await or ignore it explicitly.
//
// # Observation
//
// Policies report attempts, exhaustions, and timeouts through the
// Observer interface. telemetry.Metrics satisfies it; the default is a
// no-op.
package resilience
