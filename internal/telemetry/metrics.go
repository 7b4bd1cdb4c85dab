package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// DispatchMetricsMeterName is the name used for the dispatch metrics meter
const DispatchMetricsMeterName = "github.com/uom-robota/robota-core/dispatch"

// DispatchMetrics holds the instruments recorded around every data type
// operation.
type DispatchMetrics struct {
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewDispatchMetrics creates the dispatch instruments. If provider is nil,
// it returns nil, which records nothing.
func NewDispatchMetrics(provider metric.MeterProvider) (*DispatchMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(DispatchMetricsMeterName)

	operations, err := meter.Int64Counter(
		"robota_dispatch_operations_total",
		metric.WithDescription("Number of data type operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"robota_dispatch_duration_seconds",
		metric.WithDescription("Duration of data type operations in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	return &DispatchMetrics{operations: operations, duration: duration}, nil
}

// RecordOperation records one finished operation
func (m *DispatchMetrics) RecordOperation(
	ctx context.Context, dataType, sourceType, operation string, duration time.Duration, success bool,
) {
	if m == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("data_type", dataType),
		attribute.String("source_type", sourceType),
		attribute.String("operation", operation),
		attribute.Bool("success", success),
	)
	m.operations.Add(ctx, 1, attrs)
	m.duration.Record(ctx, duration.Seconds(), attrs)
}
