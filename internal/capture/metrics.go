package capture

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics records capture results. A nil *Metrics is a no-op.
type Metrics struct {
	captures otelmetric.Int64Counter
	duration otelmetric.Float64Histogram
	inFlight otelmetric.Int64UpDownCounter
}

func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	captures, err := meter.Int64Counter("postshot_captures_total",
		otelmetric.WithDescription("Capture attempts by result"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("postshot_capture_duration_seconds",
		otelmetric.WithDescription("Wall time of a capture including browser start and teardown"),
		otelmetric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	inFlight, err := meter.Int64UpDownCounter("postshot_sessions_in_flight",
		otelmetric.WithDescription("Browser sessions currently alive"))
	if err != nil {
		return nil, err
	}
	return &Metrics{captures: captures, duration: duration, inFlight: inFlight}, nil
}

func (m *Metrics) sessionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, 1)
}

func (m *Metrics) sessionEnded(ctx context.Context) {
	if m == nil {
		return
	}
	m.inFlight.Add(ctx, -1)
}

func (m *Metrics) record(ctx context.Context, out Outcome) {
	if m == nil {
		return
	}
	result := "ok"
	if out.Failure != nil {
		result = out.Failure.Kind.String()
	}
	attrs := otelmetric.WithAttributes(attribute.String("result", result))
	m.captures.Add(ctx, 1, attrs)
	m.duration.Record(ctx, out.Elapsed.Seconds(), attrs)
}
