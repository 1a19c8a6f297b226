// Package registry provides one-instance-per-key construction and
// serialized-call wrapping, both built on a single shared reentrant lock.
//
// The lock is injected at construction rather than held in package-level
// state, so tests and embedders can isolate registries from each other
// while production code shares one process-wide instance.
package registry

import (
	"github.com/rs/zerolog"
)

// Factory constructs the instance registered under a key on first
// request.
type Factory func() (interface{}, error)

// Operation is the callable shape Synchronized wraps.
type Operation func(args ...interface{}) (interface{}, error)

// CreateHook is notified after a registry constructs and registers a new
// instance.
type CreateHook func(key string)

// Registry maps keys (usually type identities) to their single instance.
// Entries are created on first request and never removed.
type Registry struct {
	lock      *ReentrantLock
	instances map[string]interface{}
	logger    zerolog.Logger
	onCreate  CreateHook
}

// RegistryOption configures a Registry at construction.
type RegistryOption func(*Registry)

// WithCreateHook attaches a hook invoked after each first-time
// construction.
func WithCreateHook(hook CreateHook) RegistryOption {
	return func(r *Registry) {
		if hook != nil {
			r.onCreate = hook
		}
	}
}

// New creates a registry guarded by the given lock. The same lock also
// backs Synchronized, so singleton construction and serialized calls
// share one mutual-exclusion domain.
func New(logger zerolog.Logger, lock *ReentrantLock, opts ...RegistryOption) *Registry {
	r := &Registry{
		lock:      lock,
		instances: make(map[string]interface{}),
		logger:    logger.With().Str("component", "registry").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Instance returns the existing instance for key, or constructs and
// registers one with the factory. The check-then-insert runs under the
// shared lock, held only for that span plus the factory call, so
// concurrent requests for the same key observe the identical instance.
// A factory error registers nothing.
func (r *Registry) Instance(key string, factory Factory) (interface{}, error) {
	r.lock.Lock()
	defer r.lock.Unlock()

	if instance, exists := r.instances[key]; exists {
		return instance, nil
	}

	instance, err := factory()
	if err != nil {
		return nil, err
	}

	r.instances[key] = instance
	r.logger.Debug().Str("key", key).Msg("singleton instance created")
	if r.onCreate != nil {
		r.onCreate(key)
	}
	return instance, nil
}

// Has reports whether an instance is registered under key.
func (r *Registry) Has(key string) bool {
	r.lock.Lock()
	defer r.lock.Unlock()

	_, exists := r.instances[key]
	return exists
}

// Len returns the number of registered instances.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.instances)
}

// Synchronized wraps op so every invocation acquires the registry's
// shared lock before delegating and releases it before returning or
// propagating, faults included. The lock is reentrant: a synchronized
// operation may call other synchronized operations on the same registry.
func (r *Registry) Synchronized(op Operation) Operation {
	return Synchronized(r.lock, op)
}

// Synchronized wraps op with the given lock. Release happens in a defer,
// so a panicking operation still unlocks before the fault propagates.
func Synchronized(lock *ReentrantLock, op Operation) Operation {
	return func(args ...interface{}) (interface{}, error) {
		lock.Lock()
		defer lock.Unlock()
		return op(args...)
	}
}
