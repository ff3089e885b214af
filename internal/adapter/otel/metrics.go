package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "helmsman"

// Metrics holds all Helmsman metric instruments.
type Metrics struct {
	TurnsStarted   metric.Int64Counter
	TurnsCompleted metric.Int64Counter
	TurnsFailed    metric.Int64Counter
	FramesDecoded  metric.Int64Counter
	FramesDropped  metric.Int64Counter
	TurnDuration   metric.Float64Histogram
	TurnCost       metric.Float64Histogram
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.TurnsStarted, err = meter.Int64Counter("helmsman.turns.started",
		metric.WithDescription("Number of turns started"))
	if err != nil {
		return nil, err
	}

	m.TurnsCompleted, err = meter.Int64Counter("helmsman.turns.completed",
		metric.WithDescription("Number of turns completed"))
	if err != nil {
		return nil, err
	}

	m.TurnsFailed, err = meter.Int64Counter("helmsman.turns.failed",
		metric.WithDescription("Number of turns failed"))
	if err != nil {
		return nil, err
	}

	m.FramesDecoded, err = meter.Int64Counter("helmsman.frames.decoded",
		metric.WithDescription("Number of SSE frames decoded"))
	if err != nil {
		return nil, err
	}

	m.FramesDropped, err = meter.Int64Counter("helmsman.frames.dropped",
		metric.WithDescription("Number of malformed SSE frames dropped"))
	if err != nil {
		return nil, err
	}

	m.TurnDuration, err = meter.Float64Histogram("helmsman.turn.duration_seconds",
		metric.WithDescription("Turn duration in seconds"))
	if err != nil {
		return nil, err
	}

	m.TurnCost, err = meter.Float64Histogram("helmsman.turn.cost_usd",
		metric.WithDescription("Turn cost in USD"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
