package metrics

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/streamform/agent/streaming"
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/testutil/mocks"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// Collector must satisfy the turn controller's metrics sink.
var _ streaming.Metrics = (*Collector)(nil)

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.llmRequestsTotal)
	assert.NotNil(t, collector.turnsTotal)
	assert.NotNil(t, collector.prunedTotal)
}

func TestCollector_RecordHTTPRequest(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
	collector.RecordHTTPRequest("GET", "/test", 204, 50*time.Millisecond, 512, 1024)
	collector.RecordHTTPRequest("GET", "/test", 503, 50*time.Millisecond, 512, 1024)

	assert.Equal(t, 2, testutil.CollectAndCount(collector.httpRequestsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.httpRequestsTotal.WithLabelValues("GET", "/test", "2xx")))
}

func TestCollector_RecordTurn(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordTurn("steps", "committed", time.Second)
	collector.RecordTurn("steps", "committed", time.Second)
	collector.RecordTurn("text", "stream_error", time.Second)
	collector.RecordTurnTransition("steps", "idle", "awaiting_model")
	collector.RecordSnapshot("steps")
	collector.RecordSnapshot("steps")

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.turnsTotal.WithLabelValues("steps", "committed")))
	assert.Equal(t, 2, testutil.CollectAndCount(collector.turnsTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.turnTransitions))
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.snapshotsTotal.WithLabelValues("steps")))
}

func TestCollector_RecordPrune(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordPrune("qa", 0, 0)
	assert.Equal(t, 0, testutil.CollectAndCount(collector.prunedTotal))

	collector.RecordPrune("qa", 2, 1)
	assert.Equal(t, float64(2), testutil.ToFloat64(collector.prunedTotal.WithLabelValues("qa", "unknown_field")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.prunedTotal.WithLabelValues("qa", "scalar_violation")))
}

func TestCollector_WebSockets(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.WebSocketOpened()
	collector.WebSocketOpened()
	collector.WebSocketClosed()
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.activeWebSockets))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("redis")
	collector.RecordCacheMiss("redis")

	assert.Greater(t, testutil.CollectAndCount(collector.cacheHits), 0)
	assert.Greater(t, testutil.CollectAndCount(collector.cacheMisses), 0)
}

func TestCollector_RecordDatabase(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBQuery("postgres", "SELECT", 20*time.Millisecond)
	collector.RecordDBConnections("postgres", 10, 5)

	assert.Greater(t, testutil.CollectAndCount(collector.dbQueryDuration), 0)
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 1024, 2048)
			collector.RecordLLMStream("openai", "gpt-4o-mini", "ok", 500*time.Millisecond, 100, 50)
			collector.RecordTurn("text", "committed", time.Second)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.turnsTotal.WithLabelValues("text", "committed")))
	assert.Equal(t, float64(1000), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "prompt")))
}

func TestCollector_MetricsRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	registry.MustRegister(collector.httpRequestsTotal)
	collector.RecordHTTPRequest("GET", "/test", 200, 100*time.Millisecond, 0, 0)

	count, err := testutil.GatherAndCount(registry)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

// =============================================================================
// 🤖 InstrumentedProvider 测试
// =============================================================================

func TestInstrumentedProvider_RecordsUsage(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	inner := mocks.NewMockProvider().WithName("fake").WithStreamFunc(
		func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
			ch := make(chan llm.StreamChunk, 2)
			ch <- llm.StreamChunk{Model: "m-1", Delta: llm.Message{Content: "hi"}}
			ch <- llm.StreamChunk{Model: "m-1", Usage: &llm.ChatUsage{PromptTokens: 7, CompletionTokens: 3}}
			close(ch)
			return ch, nil
		})
	p := InstrumentProvider(inner, collector)
	assert.Equal(t, "fake", p.Name())

	chunks, err := p.Stream(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)
	n := 0
	for range chunks {
		n++
	}
	assert.Equal(t, 2, n)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.llmRequestsTotal.WithLabelValues("fake", "m-1", "ok")))
	assert.Equal(t, float64(7), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("fake", "m-1", "prompt")))
	assert.Equal(t, float64(3), testutil.ToFloat64(collector.llmTokensUsed.WithLabelValues("fake", "m-1", "completion")))
}

func TestInstrumentedProvider_OpenError(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	inner := mocks.NewMockProvider().WithName("fake").
		WithError(&llm.Error{Code: llm.ErrRateLimited, Message: "slow down"})
	p := InstrumentProvider(inner, collector)

	_, err := p.Stream(context.Background(), &llm.ChatRequest{Model: "m"})
	require.Error(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.llmRequestsTotal.WithLabelValues("fake", "m", string(llm.ErrRateLimited))))
}

func TestInstrumentedProvider_ChunkError(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())
	inner := mocks.NewMockProvider().WithName("fake").
		WithStreamChunks("partial").
		WithChunkError(&llm.Error{Code: llm.ErrUpstreamError, Message: "reset"})
	p := InstrumentProvider(inner, collector)

	chunks, err := p.Stream(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)
	for range chunks {
	}
	assert.Equal(t, float64(1), testutil.ToFloat64(
		collector.llmRequestsTotal.WithLabelValues("fake", "m", string(llm.ErrUpstreamError))))
}
