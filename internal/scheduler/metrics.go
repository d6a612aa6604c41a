package scheduler

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the scheduler's instruments. Nil is a valid receiver
// everywhere it is used, so tests can pass nil.
type Metrics struct {
	turnsGenerated metric.Int64Counter
	runsAborted    metric.Int64Counter
	turnLatency    metric.Float64Histogram
}

// NewMetrics registers the scheduler instruments on the global meter
// provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("llm-duet/scheduler")

	turnsGenerated, err := meter.Int64Counter("duet_turns_generated_total",
		metric.WithDescription("Turns successfully generated and persisted"))
	if err != nil {
		return nil, err
	}

	runsAborted, err := meter.Int64Counter("duet_runs_aborted_total",
		metric.WithDescription("Streaming runs ended by a terminal error event"))
	if err != nil {
		return nil, err
	}

	turnLatency, err := meter.Float64Histogram("duet_turn_latency_seconds",
		metric.WithDescription("Provider generation latency per turn"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		turnsGenerated: turnsGenerated,
		runsAborted:    runsAborted,
		turnLatency:    turnLatency,
	}, nil
}

// TurnGenerated records one successful turn and its latency.
func (m *Metrics) TurnGenerated(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.turnsGenerated.Add(ctx, 1)
	m.turnLatency.Record(ctx, d.Seconds())
}

// RunAborted records one aborted run.
func (m *Metrics) RunAborted(ctx context.Context) {
	if m == nil {
		return
	}
	m.runsAborted.Add(ctx, 1)
}
