// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持分块流式输出、健康检查与错误注入场景。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	// 响应配置
	name         string
	streamChunks []string
	err          error
	chunkErr     *llm.Error
	health       llm.HealthStatus
	streamFunc   func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)

	// 行为控制
	delay     time.Duration
	failAfter int // 在第 N 次调用后失败
	hang      bool

	// 调用记录
	calls     []*llm.ChatRequest
	callCount int
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{
		name:   "mock",
		health: llm.HealthStatus{Healthy: true},
	}
}

// WithName 设置提供商名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithError 设置 Stream 返回的错误
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithStreamChunks 设置流式响应块，每个元素是一段增量内容
func (m *MockProvider) WithStreamChunks(chunks ...string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithChunkError 在所有块之后追加一个错误块
func (m *MockProvider) WithChunkError(err *llm.Error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkErr = err
	return m
}

// WithHang 发送完所有块后保持流打开，直到 ctx 取消
func (m *MockProvider) WithHang() *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hang = true
	return m
}

// WithHealth 设置健康检查结果
func (m *MockProvider) WithHealth(status llm.HealthStatus) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health = status
	return m
}

// WithDelay 设置每个块之间的延迟
func (m *MockProvider) WithDelay(d time.Duration) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// WithFailAfter 设置在 N 次调用后失败
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithStreamFunc 设置自定义流式函数
func (m *MockProvider) WithStreamFunc(fn func(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamFunc = fn
	return m
}

// --- llm.Provider 实现 ---

// Name 返回提供商名称
func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

// HealthCheck 返回预设的健康状态
func (m *MockProvider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := m.health
	return &status, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	m.mu.Lock()
	m.callCount++
	m.calls = append(m.calls, req)

	if m.failAfter > 0 && m.callCount > m.failAfter {
		m.mu.Unlock()
		return nil, &llm.Error{Code: llm.ErrUpstreamError, Message: "mock provider: configured to fail after N calls", Provider: m.name}
	}
	if m.err != nil {
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	if m.streamFunc != nil {
		fn := m.streamFunc
		m.mu.Unlock()
		return fn(ctx, req)
	}

	chunks := append([]string(nil), m.streamChunks...)
	chunkErr, hang, delay, name := m.chunkErr, m.hang, m.delay, m.name
	m.mu.Unlock()

	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)

		emit := func(chunk llm.StreamChunk) bool {
			if delay > 0 {
				select {
				case <-ctx.Done():
					return false
				case <-time.After(delay):
				}
			}
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}

		for i, content := range chunks {
			chunk := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: name,
				Model:    req.Model,
				Delta:    llm.Message{Role: types.RoleAssistant, Content: content},
			}
			if i == len(chunks)-1 && chunkErr == nil && !hang {
				chunk.FinishReason = "stop"
			}
			if !emit(chunk) {
				return
			}
		}
		if chunkErr != nil {
			emit(llm.StreamChunk{Provider: name, Err: chunkErr})
			return
		}
		if hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// --- 查询方法 ---

// GetCalls 获取所有请求记录
func (m *MockProvider) GetCalls() []*llm.ChatRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*llm.ChatRequest(nil), m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// LastRequest 返回最后一次请求，没有调用时返回 nil
func (m *MockProvider) LastRequest() *llm.ChatRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	return m.calls[len(m.calls)-1]
}

// Reset 重置调用记录
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.callCount = 0
}
