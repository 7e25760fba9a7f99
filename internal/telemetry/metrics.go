package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/wolfeidau/edugate"

// Metrics holds the instruments recorded by the gateway and session code.
type Metrics struct {
	RequestsTotal       metric.Int64Counter
	RequestFailures     metric.Int64Counter
	UnauthorizedTotal   metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	RequestRetries      metric.Int64Counter
	SessionsCleared     metric.Int64Counter
	GuardRedirectsTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the process-wide instruments, creating them on first use
// against whatever meter provider is installed at that point.
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = NewMetrics(otel.GetMeterProvider().Meter(meterName))
	})
	return metrics
}

// NewMetrics creates the instruments on meter. Instrument errors are ignored;
// the otel API hands back no-op instruments in that case.
func NewMetrics(meter metric.Meter) *Metrics {
	m := &Metrics{}

	m.RequestsTotal, _ = meter.Int64Counter(
		"edugate.gateway.requests.total",
		metric.WithDescription("Requests sent to the data service"),
		metric.WithUnit("{request}"),
	)

	m.RequestFailures, _ = meter.Int64Counter(
		"edugate.gateway.failures.total",
		metric.WithDescription("Requests that ended in a non-success status or transport error"),
		metric.WithUnit("{request}"),
	)

	m.UnauthorizedTotal, _ = meter.Int64Counter(
		"edugate.gateway.unauthorized.total",
		metric.WithDescription("401 responses that ended the session"),
		metric.WithUnit("{response}"),
	)

	m.RequestDuration, _ = meter.Float64Histogram(
		"edugate.gateway.request.duration",
		metric.WithDescription("Round trip time of data service requests"),
		metric.WithUnit("ms"),
	)

	m.RequestRetries, _ = meter.Int64Counter(
		"edugate.gateway.retries.total",
		metric.WithDescription("Read retries after transient failures"),
		metric.WithUnit("{retry}"),
	)

	m.SessionsCleared, _ = meter.Int64Counter(
		"edugate.session.cleared.total",
		metric.WithDescription("Sessions destroyed, by reason"),
		metric.WithUnit("{session}"),
	)

	m.GuardRedirectsTotal, _ = meter.Int64Counter(
		"edugate.guard.redirects.total",
		metric.WithDescription("Redirects scheduled by the route guard"),
		metric.WithUnit("{redirect}"),
	)

	return m
}
