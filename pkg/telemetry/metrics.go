package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for Bulwark. It satisfies
// resilience.Observer and wrap.FailureRecorder, so policies and the
// decoration engine report into it directly.
type Metrics struct {
	config MetricsConfig

	// Execution metrics
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec

	// Retry metrics
	retryAttempts    *prometheus.CounterVec
	retriesExhausted *prometheus.CounterVec

	// Timeout metrics
	timeouts *prometheus.CounterVec

	// Decoration metrics
	wrapFailures *prometheus.CounterVec

	// Registry metrics
	singletonInstances prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "executions_total",
				Help:      "Total number of guarded executions",
			},
			[]string{"operation", "status"},
		),
		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "execution_duration_seconds",
				Help:      "Duration of guarded executions in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "status"},
		),
		retryAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retry_attempts_total",
				Help:      "Total number of failed attempts that were retried",
			},
			[]string{"operation"},
		),
		retriesExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "retries_exhausted_total",
				Help:      "Total number of executions whose retry budget ran out",
			},
			[]string{"operation"},
		),
		timeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "timeouts_total",
				Help:      "Total number of executions abandoned at their time limit",
			},
			[]string{"operation"},
		),
		wrapFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "wrap_failures_total",
				Help:      "Total number of capabilities the engine could not rebind",
			},
			[]string{"reason"},
		),
		singletonInstances: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "singleton_instances",
				Help:      "Current number of registered singleton instances",
			},
		),
	}

	registry.MustRegister(
		m.executions,
		m.executionDuration,
		m.retryAttempts,
		m.retriesExhausted,
		m.timeouts,
		m.wrapFailures,
		m.singletonInstances,
	)

	return m, nil
}

// ExecutionFinished records a completed invocation with its final status.
// Implements resilience.Observer.
func (m *Metrics) ExecutionFinished(operation, status string, elapsed time.Duration) {
	if m.executions == nil {
		return
	}
	m.executions.WithLabelValues(operation, status).Inc()
	m.executionDuration.WithLabelValues(operation, status).Observe(elapsed.Seconds())
}

// RetryAttempt records a failed attempt that will be retried.
// Implements resilience.Observer.
func (m *Metrics) RetryAttempt(operation string, attempt int, delay time.Duration) {
	if m.retryAttempts == nil {
		return
	}
	m.retryAttempts.WithLabelValues(operation).Inc()
}

// RetriesExhausted records an exhausted retry budget.
// Implements resilience.Observer.
func (m *Metrics) RetriesExhausted(operation string) {
	if m.retriesExhausted == nil {
		return
	}
	m.retriesExhausted.WithLabelValues(operation).Inc()
}

// TimeoutExceeded records an abandoned worker.
// Implements resilience.Observer.
func (m *Metrics) TimeoutExceeded(operation string, limit time.Duration) {
	if m.timeouts == nil {
		return
	}
	m.timeouts.WithLabelValues(operation).Inc()
}

// WrapFailure records a capability the engine could not rebind.
// Implements wrap.FailureRecorder.
func (m *Metrics) WrapFailure(operation, reason string) {
	if m.wrapFailures == nil {
		return
	}
	m.wrapFailures.WithLabelValues(reason).Inc()
}

// SingletonCreated increments the singleton instance gauge. Suitable as a
// registry create hook.
func (m *Metrics) SingletonCreated(key string) {
	if m.singletonInstances == nil {
		return
	}
	m.singletonInstances.Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
