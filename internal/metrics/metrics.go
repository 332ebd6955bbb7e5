// Package metrics records booking, rating and HTTP measurements through OpenTelemetry.
package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/hackgods/clinic-booking"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	operations    metric.Int64Counter
	opDuration    metric.Float64Histogram
	notifications metric.Int64Counter
	httpRequests  metric.Int64Counter
	httpDuration  metric.Float64Histogram
}

func New(provider metric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter(meterName)

	operations, err := meter.Int64Counter(
		"clinic_operations_total",
		metric.WithDescription("Domain operations by name and outcome"),
	)
	if err != nil {
		return nil, err
	}

	opDuration, err := meter.Float64Histogram(
		"clinic_operation_duration_seconds",
		metric.WithDescription("Domain operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	notifications, err := meter.Int64Counter(
		"clinic_notifications_total",
		metric.WithDescription("Notification deliveries by sink and result"),
	)
	if err != nil {
		return nil, err
	}

	httpRequests, err := meter.Int64Counter(
		"http_server_request_count",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	httpDuration, err := meter.Float64Histogram(
		"http_server_request_duration_ms",
		metric.WithDescription("HTTP request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		operations:    operations,
		opDuration:    opDuration,
		notifications: notifications,
		httpRequests:  httpRequests,
		httpDuration:  httpDuration,
	}, nil
}

// RecordOperation counts one domain operation. outcome is "ok" or the error class.
func (m *Metrics) RecordOperation(ctx context.Context, op, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
	m.operations.Add(ctx, 1, attrs)
	m.opDuration.Record(ctx, d.Seconds(), attrs)
}

func (m *Metrics) RecordNotification(ctx context.Context, sink string, delivered bool) {
	if m == nil {
		return
	}
	m.notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sink", sink),
		attribute.Bool("delivered", delivered),
	))
}

func (m *Metrics) RecordHTTP(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.String("http.status_code", strconv.Itoa(status)),
	)
	m.httpRequests.Add(ctx, 1, attrs)
	m.httpDuration.Record(ctx, float64(d.Microseconds())/1000, attrs)
}
