package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/streamform/agent/streaming"
)

// SSE 事件名
const (
	EventSnapshot  = "snapshot"
	EventDone      = "done"
	EventCommitted = "committed"
	EventError     = "error"
)

// sseSink 将一轮对话的快照写成 text/event-stream。
// 响应头在第一个事件时才写出，轮次在发布前失败时仍可返回 JSON 错误。
type sseSink struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	mu      sync.Mutex
	started bool
	done    bool
}

var _ streaming.Sink = (*sseSink)(nil)

func newSSESink(w http.ResponseWriter) *sseSink {
	return &sseSink{w: w, rc: http.NewResponseController(w)}
}

// Update implements streaming.Sink.
func (s *sseSink) Update(_ context.Context, snapshot any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return streaming.ErrSinkClosed
	}
	return s.writeEvent(EventSnapshot, snapshot)
}

// Done implements streaming.Sink. A nil final marks an aborted turn and
// writes nothing; the handler reports the error itself.
func (s *sseSink) Done(_ context.Context, final any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return streaming.ErrSinkClosed
	}
	s.done = true
	if final == nil {
		return nil
	}
	return s.writeEvent(EventDone, final)
}

// Started reports whether the event stream has begun.
func (s *sseSink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Emit writes an event outside the snapshot sequence.
func (s *sseSink) Emit(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeEvent(event, data)
}

func (s *sseSink) writeEvent(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return fmt.Errorf("write %s event: %w", event, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", event, err)
	}
	return nil
}
