package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded around event log analysis.
type Metrics struct {
	analyses      metric.Int64Counter
	parseFailures metric.Int64Counter
	parseDuration metric.Float64Histogram
	eventsDecoded metric.Int64Counter
}

// NewMetrics registers the analysis instruments on the given scope.
func NewMetrics(scope string) (*Metrics, error) {
	meter := Meter(scope)

	analyses, err := meter.Int64Counter("hibana.analyses.total",
		metric.WithDescription("Completed event log analyses"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create analyses counter: %w", err)
	}
	parseFailures, err := meter.Int64Counter("hibana.parse.failures",
		metric.WithDescription("Event log parses that produced no usable model"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create failure counter: %w", err)
	}
	parseDuration, err := meter.Float64Histogram("hibana.parse.duration",
		metric.WithDescription("Wall-clock time to parse and analyze one event log"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create duration histogram: %w", err)
	}
	eventsDecoded, err := meter.Int64Counter("hibana.events.decoded",
		metric.WithDescription("Event log lines decoded into model events"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create events counter: %w", err)
	}

	return &Metrics{
		analyses:      analyses,
		parseFailures: parseFailures,
		parseDuration: parseDuration,
		eventsDecoded: eventsDecoded,
	}, nil
}

// RecordAnalysis records one completed analysis and its timing.
func (m *Metrics) RecordAnalysis(ctx context.Context, appStatus string, elapsed time.Duration, events int64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("app.status", appStatus))
	m.analyses.Add(ctx, 1, attrs)
	m.parseDuration.Record(ctx, elapsed.Seconds(), attrs)
	m.eventsDecoded.Add(ctx, events)
}

// RecordParseFailure records a parse that produced no model.
func (m *Metrics) RecordParseFailure(ctx context.Context) {
	if m == nil {
		return
	}
	m.parseFailures.Add(ctx, 1)
}
