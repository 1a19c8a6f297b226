package telemetry_test

import (
	"context"
	"time"

	"github.com/bulwark-dev/bulwark/pkg/resilience"
	"github.com/bulwark-dev/bulwark/pkg/telemetry"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceName = "bulwark"
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Start metrics server (non-blocking)
	if err := tel.StartMetricsServer(); err != nil {
		panic(err)
	}

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_observedPolicy wires the metrics collector into a retry policy
// as its observer.
func Example_observedPolicy() {
	cfg := telemetry.DefaultConfig()
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	policy := resilience.NewRetryPolicy(tel.Logger.Zerolog(),
		resilience.WithMaxAttempts(3),
		resilience.WithDelay(time.Millisecond),
		resilience.WithObserver(tel.Metrics),
	)

	_, _ = policy.Do(context.Background(), "fetch", func(args ...interface{}) (interface{}, error) {
		return "payload", nil
	})

	// Executions now show up under bulwark_executions_total.
}
