// Package observe provides observability primitives for sensebridge:
// OpenTelemetry metrics, tracing helpers, and the Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired via [InitProvider] so that metrics can be scraped from
// the standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all sensebridge
// metrics.
const meterName = "github.com/sensebridge/sensebridge"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ToolDuration tracks end-to-end tool invocation latency. Use with
	// attribute.String("tool", ...).
	ToolDuration metric.Float64Histogram

	// ToolCalls counts tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// RetryAttempts counts retries issued by the retry executor. Use with
	// attribute.String("op", ...).
	RetryAttempts metric.Int64Counter

	// PagesFetched counts hypercube page requests that returned data.
	PagesFetched metric.Int64Counter

	// RowsFetched counts rows returned across all page requests.
	RowsFetched metric.Int64Counter

	// Fallbacks counts chart retrievals that degraded to the raw-layout
	// fallback payload.
	Fallbacks metric.Int64Counter

	// ActiveSessions tracks the number of open engine sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// multi-page remote retrievals.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ToolDuration, err = m.Float64Histogram("sensebridge.tool.duration",
		metric.WithDescription("Latency of MCP tool invocations."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("sensebridge.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("sensebridge.retry.attempts",
		metric.WithDescription("Total retries issued by the retry executor, by operation."),
	); err != nil {
		return nil, err
	}
	if met.PagesFetched, err = m.Int64Counter("sensebridge.pages.fetched",
		metric.WithDescription("Total hypercube pages fetched."),
	); err != nil {
		return nil, err
	}
	if met.RowsFetched, err = m.Int64Counter("sensebridge.rows.fetched",
		metric.WithDescription("Total hypercube rows fetched."),
	); err != nil {
		return nil, err
	}
	if met.Fallbacks, err = m.Int64Counter("sensebridge.fallbacks",
		metric.WithDescription("Total chart retrievals degraded to the raw-layout fallback."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("sensebridge.active_sessions",
		metric.WithDescription("Number of open engine sessions."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] instance built from the
// globally registered meter provider. The first call wins; call it after
// [InitProvider] so the instruments bind to the real provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			// Instrument creation only fails on invalid names, which is
			// a programming error.
			panic(err)
		}
		defaultMetrics = m
	})
	return defaultMetrics
}
