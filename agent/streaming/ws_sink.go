package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// ClientMessage is an inbound websocket frame asking for a new turn.
type ClientMessage struct {
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"`
}

// Frame is an outbound websocket frame.
type Frame struct {
	Type   string `json:"type"` // snapshot, done, error
	TurnID string `json:"turn_id,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

// WebSocketConn 将 coder/websocket 连接适配为多轮对话的传输层。
// 写操作通过 mutex 保护，因为 WebSocket 不支持并发写。
type WebSocketConn struct {
	conn   *websocket.Conn
	logger *zap.Logger
	mu     sync.Mutex // 保护写操作
	closed bool
}

// NewWebSocketConn 从已建立的 WebSocket 连接创建适配器。
func NewWebSocketConn(conn *websocket.Conn, logger *zap.Logger) *WebSocketConn {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebSocketConn{
		conn:   conn,
		logger: logger.With(zap.String("component", "ws_conn")),
	}
}

// ReadMessage 读取一个 JSON 编码的 ClientMessage。
func (w *WebSocketConn) ReadMessage(ctx context.Context) (*ClientMessage, error) {
	if !w.IsAlive() {
		return nil, fmt.Errorf("connection closed")
	}

	_, data, err := w.conn.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("websocket read: %w", err)
	}

	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	return &msg, nil
}

// WriteFrame 将 Frame 序列化为 JSON 并发送。
func (w *WebSocketConn) WriteFrame(ctx context.Context, frame Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("connection closed")
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	if err := w.conn.Write(ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// Close 关闭 WebSocket 连接。
func (w *WebSocketConn) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.conn.Close(websocket.StatusNormalClosure, "closing")
}

// IsAlive 检查连接是否存活。
func (w *WebSocketConn) IsAlive() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed
}

// Sink returns a sink that publishes one turn's frames on the connection,
// each tagged with turnID.
func (w *WebSocketConn) Sink(turnID string) Sink {
	return &wsTurnSink{conn: w, turnID: turnID}
}

type wsTurnSink struct {
	conn   *WebSocketConn
	turnID string
	mu     sync.Mutex
	done   bool
}

func (s *wsTurnSink) Update(ctx context.Context, snapshot any) error {
	return s.write(ctx, Frame{Type: string(SinkEventSnapshot), TurnID: s.turnID, Data: snapshot}, false)
}

// Done publishes the final frame. A nil final closes the sink silently so the
// caller can follow up with an error frame.
func (s *wsTurnSink) Done(ctx context.Context, final any) error {
	return s.write(ctx, Frame{Type: string(SinkEventDone), TurnID: s.turnID, Data: final}, true)
}

func (s *wsTurnSink) write(ctx context.Context, frame Frame, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSinkClosed
	}
	if last {
		s.done = true
		if frame.Data == nil {
			return nil
		}
	}
	return s.conn.WriteFrame(ctx, frame)
}
