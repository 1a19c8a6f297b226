// Package telemetry provides the observability layer of Bulwark:
// structured logging (zerolog), Prometheus metrics, OpenTelemetry
// tracing, and async event publishing, unified behind one configuration.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceName = "bulwark"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
// # Logging
//
// The logger wraps zerolog with component-scoped child loggers:
//
//	logger := tel.Logger.NewComponentLogger("wrap")
//	logger.WithOperation("Fetch").Warn("capability rebind skipped")
//
// Zerolog() hands the underlying logger to packages whose constructors
// take one directly; Log(level, message) is the generic leveled form.
//
// # Metrics
//
// telemetry.Metrics implements resilience.Observer and
// wrap.FailureRecorder, so policies and the decoration engine report
// directly into Prometheus:
//
//	bulwark_executions_total{operation,status}
//	bulwark_execution_duration_seconds{operation,status}
//	bulwark_retry_attempts_total{operation}
//	bulwark_retries_exhausted_total{operation}
//	bulwark_timeouts_total{operation}
//	bulwark_wrap_failures_total{reason}
//	bulwark_singleton_instances
//
// Metrics are exposed over HTTP via StartMetricsServer.
//
// # Tracing
//
// The tracer wraps the OpenTelemetry SDK with stdout (development), OTLP
// gRPC (production), and none (testing) exporters. Guarded executions are
// spanned with StartExecutionSpan.
//
// # Events
//
// The publisher emits buffered async events (retry.exhausted,
// timeout.exceeded, wrap.failure, singleton.created, execution.failed)
// to subscribers with optional filters.
package telemetry
