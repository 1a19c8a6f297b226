// Package capability models the public, wrappable operations of a target
// object as an explicit registration set.
//
// Instead of reflecting over a value's members at runtime, owning types
// declare the finite set of operations eligible for wrapping by
// registering them on a Set, keeping the "wrap everything public"
// ergonomics statically checkable. Enumeration is deterministic (sorted
// by name) and filters out private-named entries and property-style
// accessors, which the decoration engine does not support wrapping.
package capability

import (
	"sort"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/bulwark-dev/bulwark/pkg/fault"
)

// Fault kinds raised by capability sets.
const (
	KindDuplicate = "DuplicateCapability"
	KindUnknown   = "UnknownCapability"
	KindSealed    = "SealedCapability"
	KindInvalid   = "InvalidCapability"
)

// Op is the uniform shape of a registered operation.
type Op func(args ...interface{}) (interface{}, error)

// Descriptor names an enumerated capability. Invoke dispatches through
// the owning set, so it always reaches the current (possibly decorated)
// operation even when enumerated before wrapping.
type Descriptor struct {
	Name   string
	Invoke Op
}

// Provider is implemented by types whose operations can be decorated
// automatically.
type Provider interface {
	Capabilities() *Set
}

type entry struct {
	op          Op
	original    Op
	property    bool
	sealed      bool
	fingerprint string
}

// Set holds the registered operations of one target. A Set is safe for
// concurrent use.
type Set struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewSet creates an empty capability set.
func NewSet() *Set {
	return &Set{entries: make(map[string]*entry)}
}

// Register adds a public operation under the given name.
func (s *Set) Register(name string, op Op) error {
	return s.register(name, op, false, false)
}

// RegisterProperty adds a computed-accessor entry. Properties are
// invokable by name but excluded from enumeration, so the decoration
// engine never wraps them.
func (s *Set) RegisterProperty(name string, op Op) error {
	return s.register(name, op, true, false)
}

// RegisterSealed adds a read-only operation. Sealed entries enumerate
// normally but refuse rebinding; the decoration engine logs and skips
// them.
func (s *Set) RegisterSealed(name string, op Op) error {
	return s.register(name, op, false, true)
}

func (s *Set) register(name string, op Op, property, sealed bool) error {
	if name == "" || op == nil {
		return fault.New(KindInvalid, "capability needs a name and an operation")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fault.New(KindDuplicate, "capability %q already registered", name)
	}
	s.entries[name] = &entry{op: op, original: op, property: property, sealed: sealed}
	return nil
}

// List enumerates the wrappable capabilities: public names only, no
// properties, sorted by name. The order is stable across repeated calls
// for the same set.
func (s *Set) List() []Descriptor {
	s.mu.RLock()
	names := make([]string, 0, len(s.entries))
	for name, e := range s.entries {
		if e.property || IsPrivateName(name) {
			continue
		}
		names = append(names, name)
	}
	s.mu.RUnlock()

	sort.Strings(names)

	descriptors := make([]Descriptor, len(names))
	for i, name := range names {
		name := name
		descriptors[i] = Descriptor{
			Name: name,
			Invoke: func(args ...interface{}) (interface{}, error) {
				return s.Invoke(name, args...)
			},
		}
	}
	return descriptors
}

// Invoke runs the named operation with the given arguments.
func (s *Set) Invoke(name string, args ...interface{}) (interface{}, error) {
	s.mu.RLock()
	e, ok := s.entries[name]
	s.mu.RUnlock()

	if !ok {
		return nil, fault.New(KindUnknown, "capability %q is not registered", name)
	}
	return e.op(args...)
}

// Lookup returns the current operation bound to name.
func (s *Set) Lookup(name string) (Op, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	return e.op, true
}

// Rebind replaces the decoration on the named capability. The build
// function always receives the original, undecorated operation, so
// re-applying a decoration replaces the previous one instead of nesting
// around it. The fingerprint records which decoration is in place.
// Sealed entries refuse rebinding.
func (s *Set) Rebind(name, fingerprint string, build func(original Op) Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[name]
	if !ok {
		return fault.New(KindUnknown, "capability %q is not registered", name)
	}
	if e.sealed {
		return fault.New(KindSealed, "capability %q is sealed and cannot be rebound", name)
	}

	e.op = build(e.original)
	e.fingerprint = fingerprint
	return nil
}

// Restore rebinds the named capability to its original operation.
func (s *Set) Restore(name string) error {
	return s.Rebind(name, "", func(original Op) Op { return original })
}

// Fingerprint returns the decoration fingerprint bound to name, or the
// empty string when the capability is undecorated or unknown.
func (s *Set) Fingerprint(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[name]; ok {
		return e.fingerprint
	}
	return ""
}

// Len returns the number of registered entries, including private and
// property entries that List would filter.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsPrivateName reports whether a capability name follows the private
// naming convention: a leading underscore or a lowercase initial.
func IsPrivateName(name string) bool {
	if name == "" {
		return true
	}
	if name[0] == '_' {
		return true
	}
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsLower(r)
}
