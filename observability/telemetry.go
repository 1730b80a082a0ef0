// Package observability provides OpenTelemetry integration and audit logging
// for the command gateway.
package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry provides observability features.
type Telemetry interface {
	// StartSpan starts a new trace span.
	StartSpan(ctx context.Context, name string) (context.Context, func())

	// RecordMetric records a metric value.
	RecordMetric(name string, value float64, labels map[string]string)

	// RecordCounter increments a counter.
	RecordCounter(name string, labels map[string]string)
}

// TelemetryConfig configures telemetry.
type TelemetryConfig struct {
	// ServiceName is the service name for tracing.
	ServiceName string

	// MetricsPrefix is the prefix for all metrics.
	MetricsPrefix string
}

// DefaultTelemetryConfig returns default configuration.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		ServiceName:   "kioskd",
		MetricsPrefix: "kioskd_",
	}
}

// telemetry implements Telemetry on the global OTel providers.
type telemetry struct {
	config TelemetryConfig
	tracer trace.Tracer
	meter  metric.Meter

	executionDuration metric.Float64Histogram
	eventCounter      metric.Int64Counter
}

// NewTelemetry creates a new telemetry instance.
func NewTelemetry(config TelemetryConfig) (Telemetry, error) {
	t := &telemetry{
		config: config,
		tracer: otel.Tracer(config.ServiceName),
		meter:  otel.Meter(config.ServiceName),
	}

	var err error
	t.executionDuration, err = t.meter.Float64Histogram(
		config.MetricsPrefix+"execution_duration_ms",
		metric.WithDescription("Command execution duration in milliseconds"),
	)
	if err != nil {
		return nil, err
	}

	t.eventCounter, err = t.meter.Int64Counter(
		config.MetricsPrefix+"events_total",
		metric.WithDescription("Gateway events by name and label set"),
	)
	if err != nil {
		return nil, err
	}

	return t, nil
}

// StartSpan implements Telemetry.
func (t *telemetry) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, name)
	return ctx, func() { span.End() }
}

// RecordMetric implements Telemetry. Duration-style metrics land in the
// execution histogram; everything else counts as an event.
func (t *telemetry) RecordMetric(name string, value float64, labels map[string]string) {
	attrs := toAttributes(name, labels)
	t.executionDuration.Record(context.Background(), value, metric.WithAttributes(attrs...))
}

// RecordCounter implements Telemetry.
func (t *telemetry) RecordCounter(name string, labels map[string]string) {
	attrs := toAttributes(name, labels)
	t.eventCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

func toAttributes(name string, labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels)+1)
	attrs = append(attrs, attribute.String("metric", name))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Noop returns a telemetry implementation that records nothing.
func Noop() Telemetry {
	return noopTelemetry{}
}

type noopTelemetry struct{}

func (noopTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
func (noopTelemetry) RecordMetric(string, float64, map[string]string) {}
func (noopTelemetry) RecordCounter(string, map[string]string)         {}
