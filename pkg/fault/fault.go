// Package fault defines the error model shared by the resilience packages.
//
// A Fault is an error with a kind (category), a message, and a call stack
// captured at construction time. Policies match faults by kind, and the
// outcome package renders the captured stack when reporting failures.
package fault

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// maxStackDepth bounds the number of frames captured per fault.
const maxStackDepth = 32

// PanicKind is the kind assigned to faults recovered from panics that do
// not carry an error value.
const PanicKind = "Panic"

// Fault is an error carrying a kind, a message, and the call stack from
// the point where it was created.
type Fault struct {
	kind    string
	message string
	pcs     []uintptr
	cause   error
}

// New creates a fault of the given kind with a formatted message.
func New(kind, format string, args ...interface{}) *Fault {
	return &Fault{
		kind:    kind,
		message: fmt.Sprintf(format, args...),
		pcs:     capture(3),
	}
}

// Wrap converts an arbitrary error into a fault of the given kind,
// preserving the original message and cause. If err is already a fault,
// its captured stack is kept; otherwise the stack is captured here.
func Wrap(err error, kind string) *Fault {
	if err == nil {
		return nil
	}

	var f *Fault
	if errors.As(err, &f) {
		return &Fault{
			kind:    kind,
			message: f.message,
			pcs:     f.pcs,
			cause:   err,
		}
	}

	return &Fault{
		kind:    kind,
		message: err.Error(),
		pcs:     capture(3),
		cause:   err,
	}
}

// FromPanic converts a recovered panic value into a fault. Error values
// keep their kind via KindOf; everything else becomes a PanicKind fault
// with the value's string form as message.
func FromPanic(recovered interface{}) *Fault {
	switch v := recovered.(type) {
	case *Fault:
		return v
	case error:
		return &Fault{
			kind:    KindOf(v),
			message: v.Error(),
			pcs:     capture(4),
			cause:   v,
		}
	default:
		return &Fault{
			kind:    PanicKind,
			message: fmt.Sprint(v),
			pcs:     capture(4),
		}
	}
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return f.kind + ": " + f.message
}

// Kind returns the fault's category name.
func (f *Fault) Kind() string {
	return f.kind
}

// Message returns the fault's textual message without the kind prefix.
func (f *Fault) Message() string {
	return f.message
}

// Unwrap returns the wrapped cause, if any.
func (f *Fault) Unwrap() error {
	return f.cause
}

// KindOf returns the fault kind for any error: the declared kind for
// faults, the concrete type name for everything else. A policy matching
// on kind therefore works for undecorated errors too, and wrapping never
// changes the kind callers observe.
func KindOf(err error) string {
	if err == nil {
		return ""
	}

	var f *Fault
	if errors.As(err, &f) {
		return f.kind
	}

	t := fmt.Sprintf("%T", err)
	return strings.TrimPrefix(t, "*")
}

// capture records the caller's stack, skipping the given number of
// internal frames. Frames are ordered from the origin outward.
func capture(skip int) []uintptr {
	pcs := make([]uintptr, maxStackDepth)
	n := runtime.Callers(skip, pcs)
	return pcs[:n]
}
