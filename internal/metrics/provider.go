package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/streamform/llm"
)

// InstrumentedProvider records stream counts, durations and token usage of the
// wrapped provider.
type InstrumentedProvider struct {
	inner     llm.Provider
	collector *Collector
}

// InstrumentProvider wraps p.
func InstrumentProvider(p llm.Provider, c *Collector) *InstrumentedProvider {
	return &InstrumentedProvider{inner: p, collector: c}
}

// Name implements llm.Provider.
func (p *InstrumentedProvider) Name() string { return p.inner.Name() }

// HealthCheck implements llm.Provider.
func (p *InstrumentedProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	return p.inner.HealthCheck(ctx)
}

// Stream implements llm.Provider.
func (p *InstrumentedProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	start := time.Now()
	in, err := p.inner.Stream(ctx, req)
	if err != nil {
		p.collector.RecordLLMStream(p.inner.Name(), req.Model, streamStatus(ctx, err), time.Since(start), 0, 0)
		return nil, err
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var (
			usage  llm.ChatUsage
			model  = req.Model
			status = "ok"
		)
		defer func() {
			p.collector.RecordLLMStream(p.inner.Name(), model, status, time.Since(start), usage.PromptTokens, usage.CompletionTokens)
		}()

		for chunk := range in {
			if chunk.Model != "" {
				model = chunk.Model
			}
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
			if chunk.Err != nil {
				status = streamStatus(ctx, chunk.Err)
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				status = "cancelled"
				for range in {
				}
				return
			}
		}
		if ctx.Err() != nil && status == "ok" {
			status = "cancelled"
		}
	}()
	return out, nil
}

func streamStatus(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "cancelled"
	}
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return string(llmErr.Code)
	}
	return "error"
}
