package registry

import (
	"runtime"
	"strconv"
	"strings"
	"sync"
)

// ReentrantLock is a mutual-exclusion lock that the owning goroutine may
// acquire again without deadlocking. Each Lock must be balanced by an
// Unlock from the same goroutine; the lock is released to waiters when
// the depth returns to zero.
type ReentrantLock struct {
	mu    sync.Mutex
	cond  *sync.Cond
	owner uint64
	depth int
}

// NewReentrantLock creates an unlocked reentrant lock.
func NewReentrantLock() *ReentrantLock {
	l := &ReentrantLock{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Lock acquires the lock, blocking until it is free unless the calling
// goroutine already holds it.
func (l *ReentrantLock) Lock() {
	gid := goroutineID()

	l.mu.Lock()
	defer l.mu.Unlock()

	for {
		if l.depth == 0 {
			l.owner = gid
			l.depth = 1
			return
		}
		if l.owner == gid {
			l.depth++
			return
		}
		l.cond.Wait()
	}
}

// Unlock releases one level of the lock. It panics when called by a
// goroutine that does not hold the lock.
func (l *ReentrantLock) Unlock() {
	gid := goroutineID()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.depth == 0 || l.owner != gid {
		panic("registry: unlock of reentrant lock not held by this goroutine")
	}

	l.depth--
	if l.depth == 0 {
		l.owner = 0
		l.cond.Signal()
	}
}

// goroutineID extracts the calling goroutine's ID from the stack header.
// The runtime offers no API for this; the header format
// "goroutine N [state]:" is stable across Go releases.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	header := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	idField := header[:strings.IndexByte(header, ' ')]
	id, err := strconv.ParseUint(idField, 10, 64)
	if err != nil {
		panic("registry: cannot parse goroutine ID: " + err.Error())
	}
	return id
}
