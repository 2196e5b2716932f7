package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/agent/streaming"
	"github.com/BaSui01/streamform/api"
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/testutil"
	"github.com/BaSui01/streamform/testutil/fixtures"
	"github.com/BaSui01/streamform/testutil/mocks"
	"github.com/BaSui01/streamform/types"
)

// =============================================================================
// 🧪 测试辅助
// =============================================================================

type sseEvent struct {
	Event string
	Data  string
}

func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.Event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.Data = strings.TrimPrefix(line, "data: ")
			}
		}
		require.NotEmpty(t, ev.Event, "malformed block %q", block)
		out = append(out, ev)
	}
	return out
}

func newChatHandler(t *testing.T, opener llm.Opener, opts ...ChatOption) (*ChatHandler, *conversation.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := conversation.NewStore(logger)
	ctrl := streaming.NewController(opener, streaming.WithStore(store), streaming.WithLogger(logger))
	return NewChatHandler(store, ctrl, logger, opts...), store
}

func sendRequest(chatID, query, body string) *http.Request {
	target := "/api/v1/chats/" + chatID + "/messages"
	if query != "" {
		target += "?" + query
	}
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	r.SetPathValue("chatID", chatID)
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

// =============================================================================
// 🧪 SSE 发送消息
// =============================================================================

func TestChatHandler_SendMessageStreamsSnapshots(t *testing.T) {
	opener := mocks.NewScriptedOpener(mocks.Texts("Hel", "lo")...)
	h, store := newChatHandler(t, opener)

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-1", "", `{"message":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSE(t, w.Body.String())
	require.Len(t, events, 4)
	assert.Equal(t, sseEvent{EventSnapshot, `"Hel"`}, events[0])
	assert.Equal(t, sseEvent{EventSnapshot, `"Hello"`}, events[1])
	assert.Equal(t, sseEvent{EventDone, `"Hello"`}, events[2])
	assert.Equal(t, EventCommitted, events[3].Event)

	var done api.TurnCommitted
	require.NoError(t, json.Unmarshal([]byte(events[3].Data), &done))
	assert.Equal(t, 2, done.Snapshots)

	conv, err := store.Get(context.Background(), "chat-1")
	require.NoError(t, err)
	state := conv.Snapshot()
	assert.Equal(t, done.TurnID, state.TurnID)
	testutil.AssertRoles(t, state.Messages, types.RoleUser, types.RoleAssistant)
	assert.Equal(t, done.MessageID, state.Messages[1].ID)
	assert.Equal(t, "Hello", state.Messages[1].Content)
}

func TestChatHandler_SendMessageModeFromQuery(t *testing.T) {
	opener := mocks.NewScriptedOpener(mocks.Values(fixtures.QAPartials()...)...)
	h, _ := newChatHandler(t, opener)

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-qa", "mode=qa", `{"message":"hello?"}`))

	events := parseSSE(t, w.Body.String())
	require.NotEmpty(t, events)
	var snapshots []string
	for _, ev := range events {
		if ev.Event == EventSnapshot {
			snapshots = append(snapshots, ev.Data)
		}
	}
	assert.Equal(t, []string{`"Hel"`, `"Hello"`, `"Hello world"`}, snapshots)

	reqs := opener.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Structured())
}

func TestChatHandler_BodyModeOverridesQuery(t *testing.T) {
	opener := mocks.NewScriptedOpener(mocks.Texts("ok")...)
	h, _ := newChatHandler(t, opener, WithDefaultMode("qa"))

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-1", "mode=steps", `{"message":"hi","mode":"text"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, opener.Requests(), 1)
	assert.False(t, opener.Requests()[0].Structured())
}

func TestChatHandler_SendMessageRejectsBadInput(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		body        string
		contentType string
		wantStatus  int
	}{
		{"whitespace message", "", `{"message":"   \n\t"}`, "application/json", http.StatusBadRequest},
		{"too long", "", `{"message":"abcdefghijk"}`, "application/json", http.StatusBadRequest},
		{"unknown mode", "mode=poem", `{"message":"hi"}`, "application/json", http.StatusBadRequest},
		{"unknown field", "", `{"message":"hi","extra":1}`, "application/json", http.StatusBadRequest},
		{"wrong content type", "", `{"message":"hi"}`, "text/plain", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opener := mocks.NewScriptedOpener(mocks.Texts("never")...)
			h, store := newChatHandler(t, opener, WithMaxInputChars(10))

			r := sendRequest("chat-1", tt.query, tt.body)
			r.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			h.HandleSendMessage(w, r)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(types.ErrInvalidRequest), resp.Error.Code)

			assert.Zero(t, opener.CallCount())
			assert.Zero(t, store.Len(), "rejected input must not create a chat")
		})
	}
}

func TestChatHandler_StreamErrorBeforeOutput(t *testing.T) {
	opener := mocks.NewScriptedOpener().WithOpenError(errors.New("connection refused"))
	h, store := newChatHandler(t, opener)

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-1", "", `{"message":"hi"}`))

	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(types.ErrStreamError), resp.Error.Code)
	assert.True(t, resp.Error.Retryable)

	// 用户消息已记录
	conv, err := store.Get(context.Background(), "chat-1")
	require.NoError(t, err)
	testutil.AssertRoles(t, conv.Messages(), types.RoleUser)
}

func TestChatHandler_StreamErrorAfterOutput(t *testing.T) {
	events := append(mocks.Texts("Hel"), mocks.Failure(errors.New("reset by peer")))
	h, _ := newChatHandler(t, mocks.NewScriptedOpener(events...))

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-1", "", `{"message":"hi"}`))

	assert.Equal(t, http.StatusOK, w.Code)
	got := parseSSE(t, w.Body.String())
	require.Len(t, got, 2)
	assert.Equal(t, sseEvent{EventSnapshot, `"Hel"`}, got[0])
	assert.Equal(t, EventError, got[1].Event)

	var info ErrorInfo
	require.NoError(t, json.Unmarshal([]byte(got[1].Data), &info))
	assert.Equal(t, string(types.ErrStreamError), info.Code)
	assert.True(t, info.Retryable)
}

func TestChatHandler_AgentBusy(t *testing.T) {
	opener := mocks.NewScriptedOpener(mocks.Texts("never")...)
	h, store := newChatHandler(t, opener)

	conv, err := store.GetOrCreate(context.Background(), "chat-1")
	require.NoError(t, err)
	turn, err := conv.BeginTurn()
	require.NoError(t, err)
	defer turn.End()

	w := httptest.NewRecorder()
	h.HandleSendMessage(w, sendRequest("chat-1", "", `{"message":"hi"}`))

	assert.Equal(t, http.StatusConflict, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, string(types.ErrAgentBusy), resp.Error.Code)
	assert.Zero(t, opener.CallCount())
	assert.Zero(t, conv.Len())
}

// =============================================================================
// 🧪 读模型
// =============================================================================

func TestChatHandler_GetChat(t *testing.T) {
	h, _ := newChatHandler(t, mocks.NewScriptedOpener(mocks.Texts("Hello")...))

	get := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/chats/chat-1", nil)
		r.SetPathValue("chatID", "chat-1")
		w := httptest.NewRecorder()
		h.HandleGetChat(w, r)
		return w
	}

	w := get()
	assert.Equal(t, http.StatusNotFound, w.Code)

	h.HandleSendMessage(httptest.NewRecorder(), sendRequest("chat-1", "", `{"message":"hi"}`))

	w = get()
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Data api.ChatState `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "chat-1", body.Data.ChatID)
	assert.Equal(t, "hi", body.Data.Title)
	assert.NotEmpty(t, body.Data.TurnID)
	require.Len(t, body.Data.Messages, 2)
	assert.Equal(t, "Hello", body.Data.Messages[1].Content)
}

func TestChatHandler_MissingChatID(t *testing.T) {
	h, _ := newChatHandler(t, mocks.NewScriptedOpener())

	w := httptest.NewRecorder()
	h.HandleGetChat(w, httptest.NewRequest(http.MethodGet, "/api/v1/chats/", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// 🧪 WebSocket
// =============================================================================

type connCounter struct {
	opened, closed atomic.Int32
}

func (c *connCounter) WebSocketOpened() { c.opened.Add(1) }
func (c *connCounter) WebSocketClosed() { c.closed.Add(1) }

func dialChat(t *testing.T, h *ChatHandler, chatID string) *websocket.Conn {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/chats/{chatID}/ws", h.HandleWebSocket)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/chats/" + chatID + "/ws"
	client, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.CloseNow() })
	return client
}

func TestChatHandler_WebSocketTurn(t *testing.T) {
	counter := &connCounter{}
	h, store := newChatHandler(t, mocks.NewScriptedOpener(mocks.Texts("Hel", "lo")...), WithConnMetrics(counter))
	client := dialChat(t, h, "chat-ws")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, client, streaming.ClientMessage{Content: "hi"}))

	var frames []streaming.Frame
	for {
		var f streaming.Frame
		require.NoError(t, wsjson.Read(ctx, client, &f))
		frames = append(frames, f)
		if f.Type == EventCommitted || f.Type == EventError {
			break
		}
	}

	require.Len(t, frames, 4)
	assert.Equal(t, EventSnapshot, frames[0].Type)
	assert.Equal(t, "Hel", frames[0].Data)
	assert.Equal(t, "Hello", frames[1].Data)
	assert.Equal(t, EventDone, frames[2].Type)
	assert.Equal(t, EventCommitted, frames[3].Type)
	for _, f := range frames {
		assert.Equal(t, frames[0].TurnID, f.TurnID)
	}

	conv, err := store.Get(ctx, "chat-ws")
	require.NoError(t, err)
	assert.Equal(t, 2, conv.Len())
	assert.Equal(t, int32(1), counter.opened.Load())

	require.NoError(t, client.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return counter.closed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestChatHandler_WebSocketRejectsBadMessages(t *testing.T) {
	opener := mocks.NewScriptedOpener(mocks.Texts("never")...)
	h, _ := newChatHandler(t, opener)
	client := dialChat(t, h, "chat-ws")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("{")))
	var f streaming.Frame
	require.NoError(t, wsjson.Read(ctx, client, &f))
	assert.Equal(t, EventError, f.Type)
	assert.Equal(t, string(types.ErrInvalidRequest), f.Code)

	require.NoError(t, wsjson.Write(ctx, client, streaming.ClientMessage{Content: "  "}))
	require.NoError(t, wsjson.Read(ctx, client, &f))
	assert.Equal(t, string(types.ErrInvalidRequest), f.Code)
	assert.NotEmpty(t, f.TurnID)

	require.NoError(t, wsjson.Write(ctx, client, streaming.ClientMessage{Content: "hi", Mode: "poem"}))
	require.NoError(t, wsjson.Read(ctx, client, &f))
	assert.Equal(t, string(types.ErrInvalidRequest), f.Code)

	assert.Zero(t, opener.CallCount())
}
