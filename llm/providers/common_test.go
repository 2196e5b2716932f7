package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/streamform/llm"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		msg       string
		want      llm.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, "bad key", llm.ErrUnauthorized, false},
		{http.StatusForbidden, "nope", llm.ErrForbidden, false},
		{http.StatusTooManyRequests, "slow", llm.ErrRateLimited, true},
		{http.StatusBadRequest, "Credit balance too low", llm.ErrQuotaExceeded, false},
		{http.StatusBadRequest, "bad json", llm.ErrInvalidRequest, false},
		{http.StatusBadGateway, "gw", llm.ErrUpstreamError, true},
		{529, "busy", llm.ErrModelOverloaded, true},
		{http.StatusInternalServerError, "boom", llm.ErrUpstreamError, true},
		{http.StatusNotFound, "missing", llm.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		err := MapHTTPError(tt.status, tt.msg, "p")
		assert.Equal(t, tt.want, err.Code, "status %d", tt.status)
		assert.Equal(t, tt.retryable, err.Retryable, "status %d", tt.status)
		assert.Equal(t, tt.status, err.HTTPStatus)
		assert.Equal(t, "p", err.Provider)
	}
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad key (type: auth)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key","type":"auth"}}`)))
	assert.Equal(t, "plain", ReadErrorMessage(strings.NewReader(`{"error":{"message":"plain"}}`)))
	assert.Equal(t, "not json", ReadErrorMessage(strings.NewReader("not json")))
}

func TestConvertResponseFormat(t *testing.T) {
	assert.Nil(t, ConvertResponseFormat(nil))

	obj := ConvertResponseFormat(&llm.ResponseFormat{Type: "json_object"})
	assert.Equal(t, "json_object", obj.Type)
	assert.Nil(t, obj.JSONSchema)

	schema := ConvertResponseFormat(&llm.ResponseFormat{Type: "json_schema", Schema: json.RawMessage(`{}`)})
	require.NotNil(t, schema.JSONSchema)
	assert.Equal(t, "response", schema.JSONSchema.Name)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def", "fb"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}

// ---------------------------------------------------------------------------
// RetryableProvider
// ---------------------------------------------------------------------------

type flakyProvider struct {
	failures int
	err      error
	calls    atomic.Int32
}

func (f *flakyProvider) Name() string { return "flaky" }

func (f *flakyProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	return &llm.HealthStatus{Healthy: true}, nil
}

func (f *flakyProvider) Stream(context.Context, *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if int(f.calls.Add(1)) <= f.failures {
		return nil, f.err
	}
	ch := make(chan llm.StreamChunk)
	close(ch)
	return ch, nil
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2,
		RetryableOnly: true,
	}
}

func TestRetryableProvider_RetriesTransientErrors(t *testing.T) {
	inner := &flakyProvider{failures: 2, err: MapHTTPError(http.StatusServiceUnavailable, "down", "flaky")}
	p := NewRetryableProvider(inner, fastRetry(), zaptest.NewLogger(t))

	ch, err := p.Stream(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	require.NotNil(t, ch)
	assert.Equal(t, int32(3), inner.calls.Load())
	assert.Equal(t, "flaky", p.Name())
}

func TestRetryableProvider_StopsOnPermanentError(t *testing.T) {
	inner := &flakyProvider{failures: 5, err: MapHTTPError(http.StatusUnauthorized, "bad key", "flaky")}
	p := NewRetryableProvider(inner, fastRetry(), nil)

	_, err := p.Stream(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestRetryableProvider_GivesUp(t *testing.T) {
	down := MapHTTPError(http.StatusServiceUnavailable, "down", "flaky")
	inner := &flakyProvider{failures: 10, err: down}
	p := NewRetryableProvider(inner, fastRetry(), nil)

	_, err := p.Stream(context.Background(), &llm.ChatRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, down))
	assert.Equal(t, int32(4), inner.calls.Load())
}

func TestRetryableProvider_ContextCancelled(t *testing.T) {
	inner := &flakyProvider{failures: 10, err: MapHTTPError(http.StatusServiceUnavailable, "down", "flaky")}
	cfg := fastRetry()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	p := NewRetryableProvider(inner, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Stream(ctx, &llm.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryableProvider_CalculateDelay(t *testing.T) {
	p := NewRetryableProvider(&flakyProvider{}, DefaultRetryConfig(), nil)
	assert.Equal(t, time.Second, p.calculateDelay(1))
	assert.Equal(t, 2*time.Second, p.calculateDelay(2))
	assert.Equal(t, 30*time.Second, p.calculateDelay(10))
}
