package telemetry

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// LogSink writes records to a structured logger at debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink on l, or on the default logger when l is nil.
func NewLogSink(l *slog.Logger) *LogSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogSink{logger: l.With("component", "telemetry")}
}

func (s *LogSink) Emit(ctx context.Context, rec Record) {
	attrs := make([]any, 0, 8+2*len(rec.Data))
	attrs = append(attrs, "event", rec.Name, "session_id", rec.SessionID, "cohort", rec.Cohort, "ts", rec.Timestamp)
	for k, v := range rec.Data {
		attrs = append(attrs, "data."+k, v)
	}
	s.logger.DebugContext(ctx, "telemetry", attrs...)
}

// metricAttributeKeys are the only data fields promoted to metric
// attributes; everything else would explode cardinality.
var metricAttributeKeys = []string{"action_type", "tier", "status", "failure_code", "from", "to", "event"}

// MetricSink counts records per event name on an OpenTelemetry meter.
type MetricSink struct {
	events metric.Int64Counter
}

// NewMetricSink registers the runway.events.total counter on meter.
func NewMetricSink(meter metric.Meter) (*MetricSink, error) {
	c, err := meter.Int64Counter("runway.events.total",
		metric.WithDescription("Governance pipeline telemetry events"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, err
	}
	return &MetricSink{events: c}, nil
}

func (s *MetricSink) Emit(ctx context.Context, rec Record) {
	attrs := []attribute.KeyValue{attribute.String("runway.event", rec.Name)}
	if rec.Cohort != "" {
		attrs = append(attrs, attribute.String("runway.cohort", rec.Cohort))
	}
	for _, k := range metricAttributeKeys {
		if v, ok := rec.Data[k].(string); ok && v != "" {
			attrs = append(attrs, attribute.String("runway."+k, v))
		}
	}
	s.events.Add(ctx, 1, metric.WithAttributes(attrs...))
}
