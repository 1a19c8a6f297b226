package resilience

import (
	"time"

	"github.com/bulwark-dev/bulwark/pkg/fault"
)

// Callable is the uniform shape of an operation a policy can wrap.
type Callable func(args ...interface{}) (interface{}, error)

// Observer receives policy lifecycle notifications. Implementations must
// be safe for concurrent use; telemetry.Metrics satisfies this interface.
type Observer interface {
	// ExecutionFinished is called once per completed invocation with the
	// final status: "succeeded", "recovered", "failed", or "timeout".
	ExecutionFinished(operation, status string, elapsed time.Duration)

	// RetryAttempt is called after each failed attempt that will be
	// retried, with the delay that will precede the next attempt.
	RetryAttempt(operation string, attempt int, delay time.Duration)

	// RetriesExhausted is called when the retry budget runs out.
	RetriesExhausted(operation string)

	// TimeoutExceeded is called when a guard abandons its worker.
	TimeoutExceeded(operation string, limit time.Duration)
}

// NopObserver is the default Observer; it discards all notifications.
type NopObserver struct{}

func (NopObserver) ExecutionFinished(string, string, time.Duration) {}
func (NopObserver) RetryAttempt(string, int, time.Duration)         {}
func (NopObserver) RetriesExhausted(string)                         {}
func (NopObserver) TimeoutExceeded(string, time.Duration)           {}

// Execution statuses reported to observers.
const (
	StatusSucceeded = "succeeded"
	StatusRecovered = "recovered"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// safeInvoke runs fn, converting panics into faults so that policies can
// match and recover them like error returns.
func safeInvoke(fn Callable, args []interface{}) (value interface{}, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			value = nil
			err = fault.FromPanic(recovered)
		}
	}()
	return fn(args...)
}

// kindSet builds the lookup set for a matched-kinds filter. An empty
// filter matches every kind.
func kindSet(kinds []string) map[string]struct{} {
	if len(kinds) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(kinds))
	for _, k := range kinds {
		set[k] = struct{}{}
	}
	return set
}

// matchesKind reports whether err's kind is covered by the filter.
func matchesKind(set map[string]struct{}, err error) bool {
	if set == nil {
		return true
	}
	_, ok := set[fault.KindOf(err)]
	return ok
}
