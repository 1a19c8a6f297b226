package resilience

import (
	"time"

	"github.com/rs/zerolog"
)

// Timed wraps fn so every invocation logs its start and its elapsed time
// at info level. The completion entry is written even when fn faults.
func Timed(logger zerolog.Logger, operation string, fn Callable) Callable {
	tlog := logger.With().Str("component", "timed").Logger()

	return func(args ...interface{}) (interface{}, error) {
		started := time.Now()
		tlog.Info().Str("operation", operation).Msg("execution started")

		defer func() {
			tlog.Info().
				Str("operation", operation).
				Dur("elapsed", time.Since(started)).
				Msg("execution finished")
		}()

		return fn(args...)
	}
}
