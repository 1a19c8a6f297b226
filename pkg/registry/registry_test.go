package registry

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var testLogger = zerolog.New(nil).Level(zerolog.Disabled)

func TestInstanceReturnsSameValue(t *testing.T) {
	r := New(testLogger, NewReentrantLock())

	built := 0
	factory := func() (interface{}, error) {
		built++
		return &struct{ n int }{n: built}, nil
	}

	first, err := r.Instance("service", factory)
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}
	second, err := r.Instance("service", factory)
	if err != nil {
		t.Fatalf("Instance failed: %v", err)
	}

	if first != second {
		t.Error("Expected the identical instance on repeated requests")
	}
	if built != 1 {
		t.Errorf("factory ran %d times, want 1", built)
	}
}

func TestInstanceDistinctKeys(t *testing.T) {
	r := New(testLogger, NewReentrantLock())

	a, _ := r.Instance("a", func() (interface{}, error) { return new(int), nil })
	b, _ := r.Instance("b", func() (interface{}, error) { return new(int), nil })

	if a == b {
		t.Error("Distinct keys should yield distinct instances")
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestInstanceFactoryErrorRegistersNothing(t *testing.T) {
	r := New(testLogger, NewReentrantLock())

	boom := errors.New("cannot construct")
	_, err := r.Instance("service", func() (interface{}, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want the factory error", err)
	}
	if r.Has("service") {
		t.Error("A failed factory must not register an instance")
	}

	// A later successful factory still works.
	v, err := r.Instance("service", func() (interface{}, error) {
		return "ok", nil
	})
	if err != nil || v != "ok" {
		t.Errorf("Instance after failure = %v, %v", v, err)
	}
}

func TestInstanceConcurrentIdentity(t *testing.T) {
	r := New(testLogger, NewReentrantLock())

	const goroutines = 32
	results := make([]interface{}, goroutines)
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := r.Instance("shared", func() (interface{}, error) {
				return new(struct{}), nil
			})
			if err != nil {
				t.Errorf("Instance failed: %v", err)
				return
			}
			results[i] = v
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if results[i] != results[0] {
			t.Fatal("Concurrent requests observed different instances")
		}
	}
}

func TestCreateHook(t *testing.T) {
	var created []string
	r := New(testLogger, NewReentrantLock(), WithCreateHook(func(key string) {
		created = append(created, key)
	}))

	_, _ = r.Instance("a", func() (interface{}, error) { return 1, nil })
	_, _ = r.Instance("a", func() (interface{}, error) { return 2, nil })
	_, _ = r.Instance("b", func() (interface{}, error) { return 3, nil })

	if len(created) != 2 || created[0] != "a" || created[1] != "b" {
		t.Errorf("hook calls = %v, want [a b]", created)
	}
}

func TestSynchronizedSerializes(t *testing.T) {
	lock := NewReentrantLock()

	active := 0
	maxActive := 0
	op := Synchronized(lock, func(args ...interface{}) (interface{}, error) {
		active++
		if active > maxActive {
			maxActive = active
		}
		active--
		return nil, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, _ = op()
			}
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Errorf("maxActive = %d, want 1 (serialized)", maxActive)
	}
}

func TestSynchronizedReleasesOnPanic(t *testing.T) {
	lock := NewReentrantLock()
	op := Synchronized(lock, func(args ...interface{}) (interface{}, error) {
		panic("inside")
	})

	func() {
		defer func() { _ = recover() }()
		_, _ = op()
	}()

	// The lock must be free again.
	done := make(chan struct{})
	go func() {
		lock.Lock()
		lock.Unlock()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock was not released after the panic")
	}
}

func TestReentrantLockSameGoroutine(t *testing.T) {
	lock := NewReentrantLock()

	lock.Lock()
	lock.Lock() // reentrant acquire must not deadlock
	lock.Unlock()
	lock.Unlock()
}

func TestSynchronizedNested(t *testing.T) {
	r := New(testLogger, NewReentrantLock())

	inner := r.Synchronized(func(args ...interface{}) (interface{}, error) {
		return "inner", nil
	})
	outer := r.Synchronized(func(args ...interface{}) (interface{}, error) {
		return inner()
	})

	value, err := outer()
	if err != nil {
		t.Fatalf("nested synchronized call failed: %v", err)
	}
	if value != "inner" {
		t.Errorf("value = %v, want inner", value)
	}
}

func TestUnlockWithoutLockPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic from unbalanced Unlock")
		}
	}()
	NewReentrantLock().Unlock()
}
