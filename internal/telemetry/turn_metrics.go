package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/streamform/agent/streaming"
)

// TurnMetrics exports turn telemetry through an OTel meter.
type TurnMetrics struct {
	turns       metric.Int64Counter
	duration    metric.Float64Histogram
	transitions metric.Int64Counter
	snapshots   metric.Int64Counter
	pruned      metric.Int64Counter
}

var _ streaming.Metrics = (*TurnMetrics)(nil)

// NewTurnMetrics creates the turn instruments on meter.
func NewTurnMetrics(meter metric.Meter) (*TurnMetrics, error) {
	var (
		m   TurnMetrics
		err error
	)
	if m.turns, err = meter.Int64Counter("streamform.turns",
		metric.WithDescription("Finished turns by mode and outcome")); err != nil {
		return nil, fmt.Errorf("create turns counter: %w", err)
	}
	if m.duration, err = meter.Float64Histogram("streamform.turn.duration",
		metric.WithDescription("Turn duration"), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create turn duration histogram: %w", err)
	}
	if m.transitions, err = meter.Int64Counter("streamform.turn.transitions"); err != nil {
		return nil, fmt.Errorf("create transitions counter: %w", err)
	}
	if m.snapshots, err = meter.Int64Counter("streamform.turn.snapshots"); err != nil {
		return nil, fmt.Errorf("create snapshots counter: %w", err)
	}
	if m.pruned, err = meter.Int64Counter("streamform.reconcile.pruned"); err != nil {
		return nil, fmt.Errorf("create pruned counter: %w", err)
	}
	return &m, nil
}

// RecordTurn implements streaming.Metrics.
func (m *TurnMetrics) RecordTurn(mode, outcome string, d time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("mode", mode), attribute.String("outcome", outcome))
	m.turns.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// RecordTurnTransition implements streaming.Metrics.
func (m *TurnMetrics) RecordTurnTransition(mode, from, to string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	))
}

// RecordSnapshot implements streaming.Metrics.
func (m *TurnMetrics) RecordSnapshot(mode string) {
	m.snapshots.Add(context.Background(), 1, metric.WithAttributes(attribute.String("mode", mode)))
}

// RecordPrune implements streaming.Metrics.
func (m *TurnMetrics) RecordPrune(mode string, unknownFields, scalarViolations int) {
	ctx := context.Background()
	if unknownFields > 0 {
		m.pruned.Add(ctx, int64(unknownFields), metric.WithAttributes(
			attribute.String("mode", mode), attribute.String("reason", "unknown_field")))
	}
	if scalarViolations > 0 {
		m.pruned.Add(ctx, int64(scalarViolations), metric.WithAttributes(
			attribute.String("mode", mode), attribute.String("reason", "scalar_violation")))
	}
}

// Fanout forwards every call to each non-nil sink.
type Fanout []streaming.Metrics

var _ streaming.Metrics = Fanout(nil)

// Combine builds a Fanout, skipping nil sinks.
func Combine(sinks ...streaming.Metrics) Fanout {
	out := make(Fanout, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (f Fanout) RecordTurn(mode, outcome string, d time.Duration) {
	for _, s := range f {
		s.RecordTurn(mode, outcome, d)
	}
}

func (f Fanout) RecordTurnTransition(mode, from, to string) {
	for _, s := range f {
		s.RecordTurnTransition(mode, from, to)
	}
}

func (f Fanout) RecordSnapshot(mode string) {
	for _, s := range f {
		s.RecordSnapshot(mode)
	}
}

func (f Fanout) RecordPrune(mode string, unknownFields, scalarViolations int) {
	for _, s := range f {
		s.RecordPrune(mode, unknownFields, scalarViolations)
	}
}
