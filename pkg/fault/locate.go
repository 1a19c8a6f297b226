package fault

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// UnknownLocation is returned by Locate when the error carries no usable
// stack, or when skipping exhausts the captured frames.
const UnknownLocation = "unknown location"

// Locate finds the originating call site of an error beyond skipFrames
// synthetic wrapper frames. It returns a "file:line in function" string
// for the first remaining frame, or UnknownLocation if the error has no
// captured stack or the skip exhausts it. The second return value is the
// full formatted trace regardless of the skip count.
//
// Locate never fails: any error value, including nil-stack errors and
// plain stdlib errors, yields the sentinel rather than a fault.
func Locate(err error, skipFrames int) (string, string) {
	trace := Trace(err)

	var f *Fault
	if !errors.As(err, &f) || len(f.pcs) == 0 {
		return UnknownLocation, trace
	}

	pcs := f.pcs
	if skipFrames > 0 {
		if skipFrames >= len(pcs) {
			return UnknownLocation, trace
		}
		pcs = pcs[skipFrames:]
	}

	frames := runtime.CallersFrames(pcs)
	frame, _ := frames.Next()
	if frame.PC == 0 {
		return UnknownLocation, trace
	}

	return fmt.Sprintf("%s:%d in %s", frame.File, frame.Line, frame.Function), trace
}

// Trace renders the full formatted stack text for an error. For errors
// without a captured stack the trace degrades to the error message alone.
func Trace(err error) string {
	if err == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(err.Error())

	var f *Fault
	if !errors.As(err, &f) || len(f.pcs) == 0 {
		return sb.String()
	}

	frames := runtime.CallersFrames(f.pcs)
	for {
		frame, more := frames.Next()
		if frame.PC != 0 {
			fmt.Fprintf(&sb, "\n    at %s (%s:%d)", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}

	return sb.String()
}
