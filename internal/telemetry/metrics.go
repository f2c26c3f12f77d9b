package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/personlookup"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Listener metrics
	ConnectionsAccepted metric.Int64Counter
	AcceptErrors        metric.Int64Counter

	// Connection metrics
	ActiveConnections metric.Int64UpDownCounter
	HandshakeFailures metric.Int64Counter
	StoreOpenFailures metric.Int64Counter

	// Request metrics
	RequestsTotal metric.Int64Counter
	QueryDuration metric.Float64Histogram
	ResultsTotal  metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary.
// Instruments are bound to whatever meter provider is global at first call; without
// InitTelemetry that is the no-op provider.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for per-request spans.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.ConnectionsAccepted, _ = meter.Int64Counter(
		"personlookup.connections.accepted.total",
		metric.WithDescription("Total number of TCP connections accepted"),
		metric.WithUnit("{connection}"),
	)

	m.AcceptErrors, _ = meter.Int64Counter(
		"personlookup.accept.errors.total",
		metric.WithDescription("Total number of failed accept calls"),
		metric.WithUnit("{error}"),
	)

	m.ActiveConnections, _ = meter.Int64UpDownCounter(
		"personlookup.connections.active",
		metric.WithDescription("Number of connections currently being served"),
		metric.WithUnit("{connection}"),
	)

	m.HandshakeFailures, _ = meter.Int64Counter(
		"personlookup.handshake.failures.total",
		metric.WithDescription("Total number of failed TLS handshakes"),
		metric.WithUnit("{connection}"),
	)

	m.StoreOpenFailures, _ = meter.Int64Counter(
		"personlookup.store.open.failures.total",
		metric.WithDescription("Total number of connections dropped because a database could not be opened"),
		metric.WithUnit("{connection}"),
	)

	m.RequestsTotal, _ = meter.Int64Counter(
		"personlookup.requests.total",
		metric.WithDescription("Total number of requests answered, by route and status"),
		metric.WithUnit("{request}"),
	)

	m.QueryDuration, _ = meter.Float64Histogram(
		"personlookup.query.duration",
		metric.WithDescription("Duration of person lookups"),
		metric.WithUnit("ms"),
	)

	m.ResultsTotal, _ = meter.Int64Counter(
		"personlookup.results.total",
		metric.WithDescription("Total number of person records returned"),
		metric.WithUnit("{record}"),
	)

	return m
}
