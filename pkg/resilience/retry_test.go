package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bulwark-dev/bulwark/pkg/fault"
)

var testLogger = zerolog.New(nil).Level(zerolog.Disabled)

// countingObserver records notifications for assertions.
type countingObserver struct {
	mu        sync.Mutex
	finished  []string
	attempts  int
	exhausted int
	timeouts  int
}

func (o *countingObserver) ExecutionFinished(operation, status string, elapsed time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, status)
}

func (o *countingObserver) RetryAttempt(operation string, attempt int, delay time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts++
}

func (o *countingObserver) RetriesExhausted(operation string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.exhausted++
}

func (o *countingObserver) TimeoutExceeded(operation string, limit time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.timeouts++
}

func (o *countingObserver) lastStatus() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.finished) == 0 {
		return ""
	}
	return o.finished[len(o.finished)-1]
}

func TestRetrySucceedsWithinBudget(t *testing.T) {
	obs := &countingObserver{}
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(3),
		WithDelay(time.Millisecond),
		WithObserver(obs),
	)

	calls := 0
	value, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, fault.New("NetworkFault", "transient")
		}
		return "payload", nil
	})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if value != "payload" {
		t.Errorf("value = %v, want payload", value)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if obs.attempts != 2 {
		t.Errorf("retry notifications = %d, want 2", obs.attempts)
	}
	if obs.lastStatus() != StatusSucceeded {
		t.Errorf("final status = %q, want %q", obs.lastStatus(), StatusSucceeded)
	}
}

func TestRetryExhaustionReraisesLastFault(t *testing.T) {
	obs := &countingObserver{}
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(2),
		WithDelay(time.Millisecond),
		WithObserver(obs),
	)

	calls := 0
	last := fault.New("NetworkFault", "still down")
	_, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		return nil, last
	})

	if !errors.Is(err, last) {
		t.Fatalf("err = %v, want the last fault unchanged", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if obs.exhausted != 1 {
		t.Errorf("exhausted notifications = %d, want 1", obs.exhausted)
	}
	if obs.lastStatus() != StatusFailed {
		t.Errorf("final status = %q, want %q", obs.lastStatus(), StatusFailed)
	}
}

func TestRetryExhaustionReturnsFallback(t *testing.T) {
	obs := &countingObserver{}
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(2),
		WithDelay(time.Millisecond),
		WithFallback("cached"),
		WithObserver(obs),
	)

	value, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		return nil, fault.New("NetworkFault", "still down")
	})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if value != "cached" {
		t.Errorf("value = %v, want cached", value)
	}
	if obs.lastStatus() != StatusRecovered {
		t.Errorf("final status = %q, want %q", obs.lastStatus(), StatusRecovered)
	}
}

func TestRetryBudgetBelowOneRetriesForever(t *testing.T) {
	obs := &countingObserver{}
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(0),
		WithDelay(time.Millisecond),
		WithObserver(obs),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	_, err := policy.Do(ctx, "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		if calls == 10 {
			cancel()
		}
		return nil, fault.New("NetworkFault", "down")
	})

	if err == nil {
		t.Fatal("Expected the cancellation error to end the loop")
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10 (well past any finite budget)", calls)
	}
	if obs.exhausted != 0 {
		t.Errorf("exhausted notifications = %d, want 0", obs.exhausted)
	}
}

func TestRetryUnmatchedFaultPropagatesImmediately(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(5),
		WithDelay(time.Millisecond),
		WithMatchedKinds("NetworkFault"),
	)

	calls := 0
	boom := fault.New("ValueFault", "wrong shape")
	_, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		return nil, boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the unmatched fault", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry for unmatched kinds)", calls)
	}
}

func TestRetryMatchesPlainErrorsByTypeName(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(2),
		WithDelay(time.Millisecond),
		WithMatchedKinds("errors.errorString"),
	)

	calls := 0
	_, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		return nil, errors.New("plain failure")
	})

	if err == nil {
		t.Fatal("Expected the last error after exhaustion")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (plain errors matched by type name)", calls)
	}
}

func TestRetryRecoversPanics(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(2),
		WithDelay(time.Millisecond),
	)

	calls := 0
	value, err := policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		if calls == 1 {
			panic("first attempt explodes")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if value != "ok" {
		t.Errorf("value = %v, want ok", value)
	}
}

func TestRetryBackoffGrowsDelay(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(3),
		WithDelay(10*time.Millisecond),
		WithBackoff(2.0),
	)

	started := time.Now()
	_, _ = policy.Do(context.Background(), "Fetch", func(args ...interface{}) (interface{}, error) {
		return nil, fault.New("NetworkFault", "down")
	})
	elapsed := time.Since(started)

	// Two sleeps: 10ms then 20ms.
	if elapsed < 30*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 30ms of backoff sleeps", elapsed)
	}
}

func TestRetryCancelledContextAbortsSleep(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(3),
		WithDelay(time.Minute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	started := time.Now()
	_, err := policy.Do(ctx, "Fetch", func(args ...interface{}) (interface{}, error) {
		return nil, fault.New("NetworkFault", "down")
	})

	if err == nil {
		t.Fatal("Expected a cancellation error")
	}
	if time.Since(started) > time.Second {
		t.Error("Cancellation should abort the sleep promptly")
	}
}

func TestRetryBackoffClamp(t *testing.T) {
	policy := NewRetryPolicy(testLogger, WithBackoff(0.25))
	if policy.BackoffFactor() != 1.0 {
		t.Errorf("BackoffFactor = %g, want clamp to 1.0", policy.BackoffFactor())
	}
}

func TestRetryWrap(t *testing.T) {
	policy := NewRetryPolicy(testLogger,
		WithMaxAttempts(2),
		WithDelay(time.Millisecond),
	)

	calls := 0
	wrapped := policy.Wrap("Fetch", func(args ...interface{}) (interface{}, error) {
		calls++
		if calls == 1 {
			return nil, fault.New("NetworkFault", "down")
		}
		return args[0], nil
	})

	value, err := wrapped("through")
	if err != nil {
		t.Fatalf("wrapped call failed: %v", err)
	}
	if value != "through" {
		t.Errorf("value = %v, want through", value)
	}
}
