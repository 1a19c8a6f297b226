// Package outcome provides a uniform, introspectable record for a single
// execution of a callable: success flag, returned value, fault details,
// timing, and caller-attached metadata.
package outcome

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bulwark-dev/bulwark/pkg/fault"
)

// MinElapsed is the floor applied to measured durations so that a
// zero-duration call is still distinguishable from "not measured".
const MinElapsed = time.Microsecond

// Callable is the uniform shape of an operation the recorder can run.
type Callable func(args ...interface{}) (interface{}, error)

// Clock yields the current instant. The default clock is time.Now, whose
// readings carry a monotonic component suitable for elapsed computation.
type Clock func() time.Time

// FaultInfo describes a recovered fault: its category name, textual
// message, and the full formatted trace.
type FaultInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// Outcome captures the result of running a callable once. It is created
// by Execute and never mutated afterwards except through Clear and
// metadata writes.
type Outcome struct {
	id        string
	succeeded bool
	value     interface{}
	fault     *FaultInfo
	startedAt time.Time
	endedAt   time.Time
	elapsed   time.Duration

	metaKeys   []string
	metaValues map[string]interface{}
}

// Recorder executes callables and produces outcomes. The zero value is
// not usable; construct one with NewRecorder.
type Recorder struct {
	logger zerolog.Logger
	clock  Clock
}

// NewRecorder creates a recorder that logs recovered faults through the
// given logger.
func NewRecorder(logger zerolog.Logger) *Recorder {
	return &Recorder{
		logger: logger.With().Str("component", "outcome").Logger(),
		clock:  time.Now,
	}
}

// WithClock returns a copy of the recorder using the given clock. Used in
// tests to control timing.
func (r *Recorder) WithClock(clock Clock) *Recorder {
	return &Recorder{logger: r.logger, clock: clock}
}

// Execute runs fn with the given arguments and records the result. Error
// returns and panics are both recovered into the outcome; Execute itself
// never propagates a fault. Recovered faults are logged once at error
// level with their origin location and full trace.
func (r *Recorder) Execute(fn Callable, args ...interface{}) *Outcome {
	started := r.clock()

	value, err := invoke(fn, args)

	ended := r.clock()
	elapsed := ended.Sub(started)
	if elapsed < MinElapsed {
		elapsed = MinElapsed
	}

	o := &Outcome{
		id:         uuid.New().String(),
		succeeded:  err == nil,
		value:      value,
		startedAt:  started,
		endedAt:    ended,
		elapsed:    elapsed,
		metaValues: make(map[string]interface{}),
	}

	if err != nil {
		o.value = nil
		location, trace := fault.Locate(err, 0)
		o.fault = &FaultInfo{
			Kind:    fault.KindOf(err),
			Message: faultMessage(err),
			Trace:   trace,
		}
		r.logger.Error().
			Str("location", location).
			Str("kind", o.fault.Kind).
			Msgf("callable execution failed\n%s", trace)
	}

	return o
}

// Execute runs fn through a one-off recorder. Convenience for call sites
// that do not hold a recorder.
func Execute(logger zerolog.Logger, fn Callable, args ...interface{}) *Outcome {
	return NewRecorder(logger).Execute(fn, args...)
}

// invoke runs the callable, converting panics into faults.
func invoke(fn Callable, args []interface{}) (value interface{}, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			value = nil
			err = fault.FromPanic(recovered)
		}
	}()
	return fn(args...)
}

// faultMessage returns the message without a kind prefix for faults, the
// plain Error() text otherwise.
func faultMessage(err error) string {
	if f, ok := err.(*fault.Fault); ok {
		return f.Message()
	}
	return err.Error()
}

// ID returns the outcome's unique identifier.
func (o *Outcome) ID() string { return o.id }

// Succeeded reports whether the callable returned normally.
func (o *Outcome) Succeeded() bool { return o.succeeded }

// Value returns the callable's return value, or nil after a fault or a
// Clear.
func (o *Outcome) Value() interface{} { return o.value }

// Fault returns the recovered fault details, or nil on success.
func (o *Outcome) Fault() *FaultInfo { return o.fault }

// HasFault reports whether a fault was recovered.
func (o *Outcome) HasFault() bool { return o.fault != nil }

// FaultMessage returns the fault's message, or the empty string on
// success.
func (o *Outcome) FaultMessage() string {
	if o.fault == nil {
		return ""
	}
	return o.fault.Message
}

// FaultKind returns the fault's category name, or the empty string on
// success.
func (o *Outcome) FaultKind() string {
	if o.fault == nil {
		return ""
	}
	return o.fault.Kind
}

// ValueOrDefault returns the value when the execution succeeded, the
// given default otherwise.
func (o *Outcome) ValueOrDefault(def interface{}) interface{} {
	if o.succeeded {
		return o.value
	}
	return def
}

// StartedAt returns the instant the execution began.
func (o *Outcome) StartedAt() time.Time { return o.startedAt }

// EndedAt returns the instant the execution finished.
func (o *Outcome) EndedAt() time.Time { return o.endedAt }

// Elapsed returns the measured duration, floored at MinElapsed.
func (o *Outcome) Elapsed() time.Duration { return o.elapsed }

// Put stores a metadata entry, preserving first-insertion order.
func (o *Outcome) Put(key string, value interface{}) {
	if o.metaValues == nil {
		o.metaValues = make(map[string]interface{})
	}
	if _, exists := o.metaValues[key]; !exists {
		o.metaKeys = append(o.metaKeys, key)
	}
	o.metaValues[key] = value
}

// Get returns the metadata entry for key, or def when absent.
func (o *Outcome) Get(key string, def interface{}) interface{} {
	if v, ok := o.metaValues[key]; ok {
		return v
	}
	return def
}

// MetadataKeys returns the metadata keys in insertion order.
func (o *Outcome) MetadataKeys() []string {
	keys := make([]string, len(o.metaKeys))
	copy(keys, o.metaKeys)
	return keys
}

// Clear drops the value, the fault, and all metadata, retaining the
// success flag and timing. Calling it again is a no-op.
func (o *Outcome) Clear() {
	o.value = nil
	o.fault = nil
	o.metaKeys = nil
	o.metaValues = make(map[string]interface{})
}

// Equal compares outcomes by their payload: two outcomes are equal iff
// their values are equal, and an outcome equals a plain value iff its
// payload does. This lets call sites treat an outcome transparently like
// its result.
func (o *Outcome) Equal(other interface{}) bool {
	if other, ok := other.(*Outcome); ok {
		return reflect.DeepEqual(o.value, other.value)
	}
	return reflect.DeepEqual(o.value, other)
}

// Truthy reports whether the payload is truthy: non-nil, non-zero, and
// non-empty for values with a length.
func (o *Outcome) Truthy() bool {
	return truthy(o.value)
}

// Info returns a summary map of the outcome suitable for logging or
// serialization. The value itself is not included.
func (o *Outcome) Info() map[string]interface{} {
	info := map[string]interface{}{
		"id":         o.id,
		"success":    o.succeeded,
		"elapsed":    o.elapsed.Seconds(),
		"started_at": o.startedAt,
		"ended_at":   o.endedAt,
		"metadata":   o.metadataMap(),
		"error":      nil,
		"error_kind": nil,
	}
	if o.fault != nil {
		info["error"] = o.fault.Message
		info["error_kind"] = o.fault.Kind
	}
	return info
}

// JSONString marshals the payload to a JSON string.
func (o *Outcome) JSONString() (string, error) {
	data, err := json.Marshal(o.value)
	if err != nil {
		return "", fmt.Errorf("failed to marshal outcome value: %w", err)
	}
	return string(data), nil
}

// DecodeJSON unmarshals a string or []byte payload into v.
func (o *Outcome) DecodeJSON(v interface{}) error {
	switch payload := o.value.(type) {
	case string:
		return json.Unmarshal([]byte(payload), v)
	case []byte:
		return json.Unmarshal(payload, v)
	default:
		return fmt.Errorf("outcome value is not JSON text: %T", o.value)
	}
}

// String renders a one-line human-readable summary.
func (o *Outcome) String() string {
	if o.succeeded {
		return fmt.Sprintf("Outcome[success] - elapsed: %s, value: %v", o.elapsed, o.value)
	}
	return fmt.Sprintf("Outcome[failure] - elapsed: %s, error: %s", o.elapsed, o.FaultMessage())
}

func (o *Outcome) metadataMap() map[string]interface{} {
	m := make(map[string]interface{}, len(o.metaValues))
	for k, v := range o.metaValues {
		m[k] = v
	}
	return m
}

// truthy mirrors payload-delegating truthiness: nil and zero values are
// false, values with a length are true when non-empty.
func truthy(v interface{}) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.String, reflect.Slice, reflect.Map, reflect.Array, reflect.Chan:
		return rv.Len() != 0
	case reflect.Ptr, reflect.Interface:
		return !rv.IsNil()
	default:
		return true
	}
}
