// Package wrap implements automatic decoration: applying one resilience
// profile to every public capability of a target in place.
//
// Re-applying Wrap to an already-wrapped target is safe. Decorations are
// always built around the original operation and recorded by fingerprint,
// so a second application replaces the previous policy instead of nesting
// retries inside retries.
package wrap

import (
	"github.com/rs/zerolog"

	"github.com/bulwark-dev/bulwark/pkg/capability"
	"github.com/bulwark-dev/bulwark/pkg/fault"
	"github.com/bulwark-dev/bulwark/pkg/profile"
	"github.com/bulwark-dev/bulwark/pkg/resilience"
)

// FailureRecorder counts capabilities the engine could not rebind.
// telemetry.Metrics satisfies this interface.
type FailureRecorder interface {
	WrapFailure(operation, reason string)
}

type nopFailureRecorder struct{}

func (nopFailureRecorder) WrapFailure(string, string) {}

// Engine rebinds a target's public capabilities to their decorated form.
type Engine struct {
	logger   zerolog.Logger
	observer resilience.Observer
	failures FailureRecorder
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithObserver attaches a policy observer propagated to every decoration
// the engine builds.
func WithObserver(o resilience.Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithFailureRecorder attaches a recorder for rebind failures.
func WithFailureRecorder(r FailureRecorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.failures = r
		}
	}
}

// New creates a decoration engine.
func New(logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		logger:   logger.With().Str("component", "wrap").Logger(),
		observer: resilience.NopObserver{},
		failures: nopFailureRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Wrap decorates every enumerated capability of the target with the
// profile, mutating the target's capability set in place. Capabilities
// that refuse rebinding (sealed entries) are logged as warnings and
// skipped; they never abort wrapping of the remaining capabilities.
// Capabilities already carrying this exact profile are left untouched.
func (e *Engine) Wrap(target capability.Provider, prof profile.Profile) error {
	if err := prof.Validate(); err != nil {
		return err
	}

	set := target.Capabilities()
	fingerprint := prof.Fingerprint()
	wrapped := 0

	for _, desc := range set.List() {
		name := desc.Name

		if set.Fingerprint(name) == fingerprint {
			e.logger.Debug().
				Str("capability", name).
				Str("profile", prof.Name).
				Msg("capability already carries this profile, skipping")
			continue
		}

		err := set.Rebind(name, fingerprint, func(original capability.Op) capability.Op {
			return e.decorate(name, original, prof)
		})
		if err != nil {
			e.logger.Warn().
				Err(err).
				Str("capability", name).
				Str("profile", prof.Name).
				Msg("failed to rebind capability, skipping")
			e.failures.WrapFailure(name, capabilityFailureReason(err))
			continue
		}
		wrapped++
	}

	e.logger.Info().
		Str("profile", prof.Name).
		Int("wrapped", wrapped).
		Msg("target capabilities wrapped")

	return nil
}

// Unwrap restores every enumerated capability of the target to its
// original operation.
func (e *Engine) Unwrap(target capability.Provider) {
	set := target.Capabilities()
	for _, desc := range set.List() {
		if err := set.Restore(desc.Name); err != nil {
			e.logger.Warn().
				Err(err).
				Str("capability", desc.Name).
				Msg("failed to restore capability")
		}
	}
}

// decorate builds the wrapped operation for one capability: retry
// wrapping when the profile budgets more than one attempt, single-shot
// fault handling otherwise, with an optional timeout guard bounding the
// caller's wait around either.
func (e *Engine) decorate(name string, original capability.Op, prof profile.Profile) capability.Op {
	inner := resilience.Callable(original)
	var wrapped resilience.Callable

	if prof.Attempts > 1 {
		opts := []resilience.RetryOption{
			resilience.WithMaxAttempts(prof.Attempts),
			resilience.WithDelay(prof.Delay.Std()),
			resilience.WithBackoff(prof.Backoff),
			resilience.WithMatchedKinds(prof.MatchedKinds...),
			resilience.WithObserver(e.observer),
		}
		if prof.Fallback != nil {
			opts = append(opts, resilience.WithFallback(prof.Fallback))
		}
		wrapped = resilience.NewRetryPolicy(e.logger, opts...).Wrap(name, inner)
	} else {
		opts := []resilience.HandlerOption{
			resilience.WithLogLevel(parseLevel(prof.LogLevel)),
			resilience.WithHandledKinds(prof.MatchedKinds...),
			resilience.WithHandlerObserver(e.observer),
		}
		if prof.Fallback != nil {
			opts = append(opts, resilience.WithDefaultReturn(prof.Fallback))
		}
		wrapped = resilience.NewHandler(e.logger, opts...).Wrap(name, inner)
	}

	if prof.Timeout > 0 {
		gopts := []resilience.GuardOption{
			resilience.WithGuardObserver(e.observer),
		}
		if prof.Fallback != nil {
			gopts = append(gopts, resilience.WithGuardFallback(prof.Fallback))
		}
		wrapped = resilience.NewTimeoutGuard(e.logger, prof.Timeout.Std(), gopts...).Wrap(name, wrapped)
	}

	return capability.Op(wrapped)
}

// capabilityFailureReason maps a rebind error to a low-cardinality metric
// label.
func capabilityFailureReason(err error) string {
	switch fault.KindOf(err) {
	case capability.KindSealed:
		return "sealed"
	case capability.KindUnknown:
		return "unknown"
	default:
		return "other"
	}
}

// parseLevel converts a profile log level to a zerolog level, defaulting
// to error.
func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
