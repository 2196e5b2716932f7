package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newManualMeter(t *testing.T) (*TurnMetrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewTurnMetrics(mp.Meter("test"))
	require.NoError(t, err)
	return m, reader
}

func collectSums(t *testing.T, reader *sdkmetric.ManualReader) map[string]int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	sums := make(map[string]int64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	return sums
}

func TestTurnMetrics_Records(t *testing.T) {
	m, reader := newManualMeter(t)

	m.RecordTurn("steps", "committed", 2*time.Second)
	m.RecordTurn("qa", "stream_error", time.Second)
	m.RecordTurnTransition("steps", "idle", "awaiting_model")
	m.RecordSnapshot("steps")
	m.RecordSnapshot("steps")
	m.RecordSnapshot("steps")
	m.RecordPrune("qa", 2, 1)
	m.RecordPrune("qa", 0, 0)

	sums := collectSums(t, reader)
	assert.Equal(t, int64(2), sums["streamform.turns"])
	assert.Equal(t, int64(1), sums["streamform.turn.transitions"])
	assert.Equal(t, int64(3), sums["streamform.turn.snapshots"])
	assert.Equal(t, int64(3), sums["streamform.reconcile.pruned"])
}

type countingMetrics struct {
	turns, transitions, snapshots, prunes int
}

func (c *countingMetrics) RecordTurn(string, string, time.Duration) { c.turns++ }
func (c *countingMetrics) RecordTurnTransition(string, string, string) {
	c.transitions++
}
func (c *countingMetrics) RecordSnapshot(string)         { c.snapshots++ }
func (c *countingMetrics) RecordPrune(string, int, int) { c.prunes++ }

func TestCombine_FansOut(t *testing.T) {
	a, b := &countingMetrics{}, &countingMetrics{}
	f := Combine(a, nil, b)
	require.Len(t, f, 2)

	f.RecordTurn("text", "committed", time.Second)
	f.RecordTurnTransition("text", "idle", "awaiting_model")
	f.RecordSnapshot("text")
	f.RecordPrune("text", 1, 0)

	for _, c := range []*countingMetrics{a, b} {
		assert.Equal(t, 1, c.turns)
		assert.Equal(t, 1, c.transitions)
		assert.Equal(t, 1, c.snapshots)
		assert.Equal(t, 1, c.prunes)
	}
}
