package metrics

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// HTTPMetrics records HTTP request counts and latencies.
type HTTPMetrics interface {
	RecordRequest(ctx context.Context, method, route string, status int, duration time.Duration)
}

type httpMetrics struct {
	requestCounter metric.Int64Counter
	durationHisto  metric.Float64Histogram
}

// NewHTTPMetrics creates an HTTPMetrics implementation using the provided meter provider.
func NewHTTPMetrics(meterProvider metric.MeterProvider, namespace string) (HTTPMetrics, error) {
	meter := meterProvider.Meter(namespace)

	requestCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_http_requests_total", namespace),
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_http_request_duration_seconds", namespace),
		metric.WithDescription("Duration of HTTP requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	return &httpMetrics{
		requestCounter: requestCounter,
		durationHisto:  durationHisto,
	}, nil
}

// RecordRequest records one request with method, route, and status labels.
// The route label is the registered route pattern, not the raw URL, to keep
// cardinality bounded.
func (h *httpMetrics) RecordRequest(
	ctx context.Context,
	method, route string,
	status int,
	duration time.Duration,
) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", strconv.Itoa(status)),
	)
	h.requestCounter.Add(ctx, 1, attrs)
	h.durationHisto.Record(ctx, duration.Seconds(), attrs)
}

// NoOpHTTPMetrics is a no-op implementation for when metrics are disabled.
type NoOpHTTPMetrics struct{}

// NewNoOpHTTPMetrics creates a no-op HTTPMetrics implementation.
func NewNoOpHTTPMetrics() HTTPMetrics {
	return &NoOpHTTPMetrics{}
}

// RecordRequest does nothing when metrics are disabled.
func (n *NoOpHTTPMetrics) RecordRequest(
	ctx context.Context,
	method, route string,
	status int,
	duration time.Duration,
) {
}
