package resilience

import (
	"time"

	"github.com/rs/zerolog"
)

// Handler recovers a matched fault in a single shot: it logs the fault
// and returns a configured default instead of retrying. Unmatched faults
// propagate untouched, as does everything when Reraise is set.
type Handler struct {
	defaultReturn interface{}
	hasDefault    bool
	messagePrefix string
	logLevel      zerolog.Level
	matchedKinds  map[string]struct{}
	reraise       bool

	logger   zerolog.Logger
	observer Observer
}

// HandlerOption configures a Handler at construction.
type HandlerOption func(*Handler)

// WithDefaultReturn sets the value returned in place of a matched fault.
func WithDefaultReturn(v interface{}) HandlerOption {
	return func(h *Handler) {
		h.defaultReturn = v
		h.hasDefault = true
	}
}

// WithMessagePrefix prepends a context string to the logged fault
// message.
func WithMessagePrefix(prefix string) HandlerOption {
	return func(h *Handler) { h.messagePrefix = prefix }
}

// WithLogLevel sets the level at which recovered faults are logged.
func WithLogLevel(level zerolog.Level) HandlerOption {
	return func(h *Handler) { h.logLevel = level }
}

// WithHandledKinds restricts recovery to faults of the given kinds.
func WithHandledKinds(kinds ...string) HandlerOption {
	return func(h *Handler) { h.matchedKinds = kindSet(kinds) }
}

// WithReraise makes the handler log matched faults but still propagate
// them.
func WithReraise(reraise bool) HandlerOption {
	return func(h *Handler) { h.reraise = reraise }
}

// WithHandlerObserver attaches a policy observer.
func WithHandlerObserver(o Observer) HandlerOption {
	return func(h *Handler) {
		if o != nil {
			h.observer = o
		}
	}
}

// NewHandler builds a single-shot fault handler. Defaults: nil default
// return, error-level logging, all fault kinds matched, no reraise.
func NewHandler(logger zerolog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{
		logLevel: zerolog.ErrorLevel,
		logger:   logger.With().Str("component", "handler").Logger(),
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Matches reports whether err's kind is recoverable under this handler.
func (h *Handler) Matches(err error) bool {
	return matchesKind(h.matchedKinds, err)
}

// Do runs fn once. A matched fault is logged and replaced by the default
// return; an unmatched fault, or any fault when reraise is set,
// propagates unchanged.
func (h *Handler) Do(operation string, fn Callable, args ...interface{}) (interface{}, error) {
	started := time.Now()

	value, err := safeInvoke(fn, args)
	if err == nil {
		h.observer.ExecutionFinished(operation, StatusSucceeded, time.Since(started))
		return value, nil
	}

	if !h.Matches(err) {
		h.observer.ExecutionFinished(operation, StatusFailed, time.Since(started))
		return nil, err
	}

	event := h.logger.WithLevel(h.logLevel).
		Str("operation", operation).
		Interface("default_return", h.defaultReturn).
		Err(err)
	if h.messagePrefix != "" {
		event.Msgf("%s: operation failed", h.messagePrefix)
	} else {
		event.Msg("operation failed")
	}

	if h.reraise {
		h.observer.ExecutionFinished(operation, StatusFailed, time.Since(started))
		return nil, err
	}

	h.observer.ExecutionFinished(operation, StatusRecovered, time.Since(started))
	return h.defaultReturn, nil
}

// Wrap returns a callable that runs fn under the handler. Used by the
// decoration engine to rebind capabilities.
func (h *Handler) Wrap(operation string, fn Callable) Callable {
	return func(args ...interface{}) (interface{}, error) {
		return h.Do(operation, fn, args...)
	}
}
