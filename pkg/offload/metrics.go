package offload

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// instrumentationName names the meter and tracer of the offload package
const instrumentationName = "github.com/jzx17/pipeoffload/offload"

// Metrics holds OpenTelemetry instruments for dispatch decisions
type Metrics struct {
	dispatchTotal   metric.Int64Counter
	revertTotal     metric.Int64Counter
	compileTotal    metric.Int64Counter
	compileDuration metric.Float64Histogram
}

// NewMetrics creates metric instruments on the given meter
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	dispatchTotal, err := meter.Int64Counter("offload.dispatch.total",
		metric.WithDescription("Dispatch requests by operation and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating offload.dispatch.total counter: %w", err)
	}

	revertTotal, err := meter.Int64Counter("offload.revert.total",
		metric.WithDescription("Fallbacks to baseline evaluation by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating offload.revert.total counter: %w", err)
	}

	compileTotal, err := meter.Int64Counter("offload.compile.total",
		metric.WithDescription("Kernel compilation attempts by status"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating offload.compile.total counter: %w", err)
	}

	compileDuration, err := meter.Float64Histogram("offload.compile.duration",
		metric.WithDescription("Duration of kernel compilation in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating offload.compile.duration histogram: %w", err)
	}

	return &Metrics{
		dispatchTotal:   dispatchTotal,
		revertTotal:     revertTotal,
		compileTotal:    compileTotal,
		compileDuration: compileDuration,
	}, nil
}

func defaultMetrics(meter metric.Meter) *Metrics {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	m, err := NewMetrics(meter)
	if err != nil {
		m, _ = NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	return m
}

// RecordDispatch counts a finished dispatch
func (m *Metrics) RecordDispatch(ctx context.Context, operation, result string) {
	m.dispatchTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

// RecordRevert counts a fallback to baseline evaluation
func (m *Metrics) RecordRevert(ctx context.Context, operation, reason string) {
	m.revertTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("reason", reason),
	))
}

// RecordCompile records one compilation attempt
func (m *Metrics) RecordCompile(ctx context.Context, status string, duration time.Duration) {
	m.compileTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.compileDuration.Record(ctx, duration.Seconds())
}
