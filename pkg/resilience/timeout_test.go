package resilience

import (
	"errors"
	"testing"
	"time"

	"github.com/bulwark-dev/bulwark/pkg/fault"
)

func TestGuardCompletesWithinLimit(t *testing.T) {
	obs := &countingObserver{}
	g := NewTimeoutGuard(testLogger, time.Second, WithGuardObserver(obs))

	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		time.Sleep(20 * time.Millisecond)
		return "done", nil
	})

	if res.TimedOut {
		t.Fatal("Expected completion within the limit")
	}
	if res.Err != nil {
		t.Fatalf("Run failed: %v", res.Err)
	}
	if res.Value != "done" {
		t.Errorf("value = %v, want done", res.Value)
	}
	if obs.lastStatus() != StatusSucceeded {
		t.Errorf("status = %q, want %q", obs.lastStatus(), StatusSucceeded)
	}
}

func TestGuardTimeoutReturnsFallback(t *testing.T) {
	obs := &countingObserver{}
	g := NewTimeoutGuard(testLogger, 20*time.Millisecond,
		WithGuardFallback("fallback"),
		WithGuardObserver(obs),
	)

	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		time.Sleep(time.Second)
		return "late", nil
	})

	if !res.TimedOut {
		t.Fatal("Expected a timeout")
	}
	if res.Value != "fallback" {
		t.Errorf("value = %v, want fallback", res.Value)
	}
	if res.Err != nil {
		t.Errorf("err = %v, want nil with fallback", res.Err)
	}
	if obs.timeouts != 1 {
		t.Errorf("timeout notifications = %d, want 1", obs.timeouts)
	}
	if obs.lastStatus() != StatusTimeout {
		t.Errorf("status = %q, want %q", obs.lastStatus(), StatusTimeout)
	}
}

func TestGuardOrphanDeliversLateResult(t *testing.T) {
	g := NewTimeoutGuard(testLogger, 20*time.Millisecond, WithGuardFallback(nil))

	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		time.Sleep(100 * time.Millisecond)
		return "late", nil
	})

	if !res.TimedOut {
		t.Fatal("Expected a timeout")
	}

	select {
	case c := <-res.Orphan:
		if c.Value != "late" {
			t.Errorf("orphan value = %v, want late", c.Value)
		}
	case <-time.After(time.Second):
		t.Fatal("Orphan completion never arrived")
	}
}

func TestGuardWorkerFaultWithFallback(t *testing.T) {
	g := NewTimeoutGuard(testLogger, time.Second, WithGuardFallback("fallback"))

	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		return nil, fault.New("NetworkFault", "down")
	})

	if res.TimedOut {
		t.Fatal("Expected a fast fault, not a timeout")
	}
	if res.Err != nil {
		t.Fatalf("err = %v, want fallback recovery", res.Err)
	}
	if res.Value != "fallback" {
		t.Errorf("value = %v, want fallback", res.Value)
	}
}

func TestGuardWorkerFaultWithoutFallback(t *testing.T) {
	g := NewTimeoutGuard(testLogger, time.Second)

	boom := fault.New("NetworkFault", "down")
	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		return nil, boom
	})

	if !errors.Is(res.Err, boom) {
		t.Fatalf("err = %v, want the worker fault propagated", res.Err)
	}
}

func TestGuardRecoversWorkerPanic(t *testing.T) {
	g := NewTimeoutGuard(testLogger, time.Second)

	res := g.Run("Fetch", func(args ...interface{}) (interface{}, error) {
		panic("worker explodes")
	})

	if res.Err == nil {
		t.Fatal("Expected a fault from the panicking worker")
	}
	if fault.KindOf(res.Err) != fault.PanicKind {
		t.Errorf("kind = %q, want %q", fault.KindOf(res.Err), fault.PanicKind)
	}
}

func TestGuardWrapFlattens(t *testing.T) {
	g := NewTimeoutGuard(testLogger, 20*time.Millisecond, WithGuardFallback(-1))

	wrapped := g.Wrap("Fetch", func(args ...interface{}) (interface{}, error) {
		time.Sleep(time.Second)
		return 42, nil
	})

	value, err := wrapped()
	if err != nil {
		t.Fatalf("wrapped call failed: %v", err)
	}
	if value != -1 {
		t.Errorf("value = %v, want the fallback", value)
	}
}

func TestTimedPassesThrough(t *testing.T) {
	fn := Timed(testLogger, "Compute", func(args ...interface{}) (interface{}, error) {
		return args[0].(int) * 2, nil
	})

	value, err := fn(21)
	if err != nil {
		t.Fatalf("timed call failed: %v", err)
	}
	if value != 42 {
		t.Errorf("value = %v, want 42", value)
	}

	boom := errors.New("bad")
	_, err = Timed(testLogger, "Compute", func(args ...interface{}) (interface{}, error) {
		return nil, boom
	})()
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want the original error", err)
	}
}
