package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/streamform/llm"
)

// ScriptedOpener 是 llm.Opener 的模拟实现，按脚本逐个发送事件。
type ScriptedOpener struct {
	mu sync.Mutex

	events  []llm.StreamEvent
	openErr error
	hang    bool
	onSend  func(i int)

	requests []*llm.ChatRequest
}

// NewScriptedOpener 创建发送给定事件的 Opener
func NewScriptedOpener(events ...llm.StreamEvent) *ScriptedOpener {
	return &ScriptedOpener{events: events}
}

// Texts 构造自由文本事件序列
func Texts(fragments ...string) []llm.StreamEvent {
	out := make([]llm.StreamEvent, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, llm.StreamEvent{Text: f})
	}
	return out
}

// Values 构造结构化事件序列，每个元素是截至当时的完整部分值
func Values(values ...any) []llm.StreamEvent {
	out := make([]llm.StreamEvent, 0, len(values))
	for _, v := range values {
		out = append(out, llm.StreamEvent{Value: v})
	}
	return out
}

// Failure 构造一个终止流的错误事件
func Failure(err error) llm.StreamEvent {
	return llm.StreamEvent{Err: err}
}

// WithOpenError 让 Open 直接失败
func (o *ScriptedOpener) WithOpenError(err error) *ScriptedOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErr = err
	return o
}

// WithHang 发送完所有事件后保持流打开，直到 ctx 取消
func (o *ScriptedOpener) WithHang() *ScriptedOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.hang = true
	return o
}

// WithOnSend 在第 i 个事件被接收后回调
func (o *ScriptedOpener) WithOnSend(fn func(i int)) *ScriptedOpener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onSend = fn
	return o
}

// Open implements llm.Opener.
func (o *ScriptedOpener) Open(ctx context.Context, req *llm.ChatRequest) (llm.ModelStream, error) {
	o.mu.Lock()
	o.requests = append(o.requests, req)
	if o.openErr != nil {
		err := o.openErr
		o.mu.Unlock()
		return nil, err
	}
	events := append([]llm.StreamEvent(nil), o.events...)
	hang, onSend := o.hang, o.onSend
	o.mu.Unlock()

	ch := make(chan llm.StreamEvent)
	go func() {
		defer close(ch)
		for i, ev := range events {
			select {
			case <-ctx.Done():
				return
			case ch <- ev:
			}
			if onSend != nil {
				onSend(i)
			}
			if ev.Err != nil {
				return
			}
		}
		if hang {
			<-ctx.Done()
		}
	}()
	return ch, nil
}

// Requests 返回所有 Open 调用的请求
func (o *ScriptedOpener) Requests() []*llm.ChatRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*llm.ChatRequest(nil), o.requests...)
}

// CallCount 返回 Open 调用次数
func (o *ScriptedOpener) CallCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.requests)
}
