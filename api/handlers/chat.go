package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/agent/streaming"
	"github.com/BaSui01/streamform/api"
	"github.com/BaSui01/streamform/types"
)

// =============================================================================
// 💬 聊天接口 Handler
// =============================================================================

// ConnMetrics 记录活跃 WebSocket 连接
type ConnMetrics interface {
	WebSocketOpened()
	WebSocketClosed()
}

// ChatHandler 聊天接口处理器
type ChatHandler struct {
	store          *conversation.Store
	controller     *streaming.Controller
	defaultMode    string
	maxInputChars  int
	originPatterns []string
	conns          ConnMetrics
	logger         *zap.Logger
}

// ChatOption 配置 ChatHandler
type ChatOption func(*ChatHandler)

// WithDefaultMode 设置未指定模式时使用的响应模式
func WithDefaultMode(mode string) ChatOption {
	return func(h *ChatHandler) { h.defaultMode = mode }
}

// WithMaxInputChars 限制单条用户消息的字符数，0 表示不限制
func WithMaxInputChars(n int) ChatOption {
	return func(h *ChatHandler) { h.maxInputChars = n }
}

// WithOriginPatterns 设置允许的 WebSocket Origin
func WithOriginPatterns(patterns ...string) ChatOption {
	return func(h *ChatHandler) { h.originPatterns = patterns }
}

// WithConnMetrics 设置连接指标
func WithConnMetrics(m ConnMetrics) ChatOption {
	return func(h *ChatHandler) { h.conns = m }
}

// NewChatHandler 创建聊天处理器
func NewChatHandler(store *conversation.Store, controller *streaming.Controller, logger *zap.Logger, opts ...ChatOption) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &ChatHandler{
		store:      store,
		controller: controller,
		logger:     logger.With(zap.String("component", "chat_handler")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleSendMessage 处理用户消息并以 SSE 流式返回助手回复
// @Summary 发送消息
// @Description 追加一条用户消息，以 Server-Sent Events 流式返回助手回复快照
// @Tags 聊天
// @Accept json
// @Produce text/event-stream
// @Param chatID path string true "聊天 ID"
// @Param mode query string false "响应模式（text、qa、steps）"
// @Param request body api.SendMessageRequest true "消息"
// @Success 200 {string} string "SSE 流"
// @Failure 400 {object} Response "无效请求"
// @Failure 409 {object} Response "已有进行中的轮次"
// @Failure 502 {object} Response "模型流失败"
// @Security BearerAuth
// @Router /api/v1/chats/{chatID}/messages [post]
func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SendMessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if err := h.validateMessage(req.Message); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	mode, err := h.resolveMode(req.Mode, r.URL.Query().Get("mode"))
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	conv, err := h.store.GetOrCreate(r.Context(), chatID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	sink := newSSESink(w)
	res, err := h.controller.WithMode(mode).Submit(r.Context(), conv, req.Message, sink)
	if err != nil {
		typed := toTypedError(err)
		if !sink.Started() {
			WriteError(w, typed, h.logger)
			return
		}
		h.logger.Warn("turn failed after streaming started",
			zap.String("chat_id", chatID),
			zap.String("code", string(typed.Code)),
			zap.Error(err))
		if emitErr := sink.Emit(EventError, errorInfo(typed)); emitErr != nil {
			h.logger.Debug("failed to write error event", zap.Error(emitErr))
		}
		return
	}

	if err := sink.Emit(EventCommitted, committed(res)); err != nil {
		h.logger.Debug("failed to write committed event", zap.Error(err))
	}
}

// HandleGetChat 返回聊天的已提交历史
// @Summary 获取聊天
// @Description 返回聊天的读模型（轮次 ID 与有序消息）
// @Tags 聊天
// @Produce json
// @Param chatID path string true "聊天 ID"
// @Success 200 {object} api.ChatState "聊天状态"
// @Failure 404 {object} Response "聊天不存在"
// @Security BearerAuth
// @Router /api/v1/chats/{chatID} [get]
func (h *ChatHandler) HandleGetChat(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	conv, err := h.store.Get(r.Context(), chatID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	s := conv.Snapshot()
	WriteSuccess(w, api.ChatState{
		ChatID:    s.ChatID,
		Title:     s.Title,
		TurnID:    s.TurnID,
		Messages:  s.Messages,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	})
}

// HandleWebSocket 通过 WebSocket 承载多轮对话
// @Summary 聊天 WebSocket
// @Description 每条客户端消息开启一轮对话；同一请求的帧带有相同的 turn_id
// @Tags 聊天
// @Param chatID path string true "聊天 ID"
// @Success 101 {string} string "协议升级"
// @Security BearerAuth
// @Router /api/v1/chats/{chatID}/ws [get]
func (h *ChatHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	chatID, ok := h.chatID(w, r)
	if !ok {
		return
	}
	conv, err := h.store.GetOrCreate(r.Context(), chatID)
	if err != nil {
		WriteAnyError(w, err, h.logger)
		return
	}

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.originPatterns})
	if err != nil {
		// Accept 已写出响应
		h.logger.Warn("websocket upgrade failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	logger := h.logger.With(zap.String("chat_id", chatID))
	conn := streaming.NewWebSocketConn(c, logger)
	if h.conns != nil {
		h.conns.WebSocketOpened()
		defer h.conns.WebSocketClosed()
	}

	ctx, cancel := context.WithCancel(r.Context())
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		_ = conn.Close()
	}()

	logger.Debug("websocket connected")
	for {
		msg, err := conn.ReadMessage(ctx)
		if err != nil {
			if isDecodeError(err) {
				h.writeFrameError(ctx, conn, "", types.NewError(types.ErrInvalidRequest, "invalid message").WithCause(err))
				continue
			}
			logger.Debug("websocket closed", zap.Error(err))
			return
		}

		requestID := types.NewID()
		if verr := h.validateMessage(msg.Content); verr != nil {
			h.writeFrameError(ctx, conn, requestID, verr)
			continue
		}
		mode, err := h.resolveMode(msg.Mode)
		if err != nil {
			h.writeFrameError(ctx, conn, requestID, err)
			continue
		}

		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			res, err := h.controller.WithMode(mode).Submit(ctx, conv, text, conn.Sink(requestID))
			if err != nil {
				h.writeFrameError(ctx, conn, requestID, err)
				return
			}
			if err := conn.WriteFrame(ctx, streaming.Frame{Type: EventCommitted, TurnID: requestID, Data: committed(res)}); err != nil {
				logger.Debug("failed to write committed frame", zap.Error(err))
			}
		}(msg.Content)
	}
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func (h *ChatHandler) chatID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("chatID"))
	if id == "" {
		WriteError(w, types.NewError(types.ErrInvalidRequest, "chat id is required"), h.logger)
		return "", false
	}
	return id, true
}

// validateMessage 拒绝空白与超长输入
func (h *ChatHandler) validateMessage(text string) *types.Error {
	if strings.TrimSpace(text) == "" {
		return types.NewError(types.ErrInvalidRequest, "message must not be empty")
	}
	if h.maxInputChars > 0 && utf8.RuneCountInString(text) > h.maxInputChars {
		return types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("message exceeds %d characters", h.maxInputChars))
	}
	return nil
}

// resolveMode 取第一个非空的模式名，都为空时使用默认模式
func (h *ChatHandler) resolveMode(names ...string) (streaming.Mode, error) {
	for _, name := range names {
		if strings.TrimSpace(name) != "" {
			return streaming.ModeByName(name)
		}
	}
	return streaming.ModeByName(h.defaultMode)
}

func (h *ChatHandler) writeFrameError(ctx context.Context, conn *streaming.WebSocketConn, requestID string, err error) {
	typed := toTypedError(err)
	frame := streaming.Frame{
		Type:   EventError,
		TurnID: requestID,
		Error:  typed.Message,
		Code:   string(typed.Code),
	}
	if werr := conn.WriteFrame(context.WithoutCancel(ctx), frame); werr != nil {
		h.logger.Debug("failed to write error frame", zap.Error(werr))
	}
}

func committed(res *streaming.Result) api.TurnCommitted {
	out := api.TurnCommitted{TurnID: res.TurnID, Snapshots: res.Snapshots}
	if res.Assistant != nil {
		out.MessageID = res.Assistant.ID
	}
	return out
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}
