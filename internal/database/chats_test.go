package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/types"
)

func newSQLiteRepository(t *testing.T) (*ChatRepository, *recordingObserver) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := Open(DriverSQLite, ":memory:", logger)
	require.NoError(t, err)

	// one connection keeps the in-memory database alive
	pool, err := NewPoolManager(db, PoolConfig{MaxOpenConns: 1, MaxIdleConns: 1}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Close() })

	obs := &recordingObserver{}
	pool.SetObserver(obs)

	repo := NewChatRepository(pool, logger)
	require.NoError(t, repo.Migrate(context.Background()))
	return repo, obs
}

func sampleState(chatID string) conversation.State {
	now := time.Now().UTC().Truncate(time.Millisecond)
	user := types.NewUserMessage("how do I install?")
	assistant := types.NewAssistantMessage("### 1. Install").
		WithPayload(json.RawMessage(`{"steps":[{"headline":"1. Install"}]}`)).
		WithAttribution([]types.Source{{Title: "Docs", URL: "https://example.com"}})
	return conversation.State{
		ChatID:    chatID,
		Title:     "how do I install?",
		TurnID:    "turn-1",
		Messages:  []types.Message{user, assistant},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestChatRepository_SaveAndLoad(t *testing.T) {
	repo, obs := newSQLiteRepository(t)
	ctx := context.Background()

	want := sampleState("chat-1")
	require.NoError(t, repo.Save(ctx, want))

	got, err := repo.Load(ctx, "chat-1")
	require.NoError(t, err)

	assert.Equal(t, want.ChatID, got.ChatID)
	assert.Equal(t, want.Title, got.Title)
	assert.Equal(t, want.TurnID, got.TurnID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, want.Messages[0].ID, got.Messages[0].ID)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Empty(t, got.Messages[0].Payload)
	assert.Nil(t, got.Messages[0].Attribution)
	assert.Equal(t, want.Messages[1].Content, got.Messages[1].Content)
	assert.JSONEq(t, string(want.Messages[1].Payload), string(got.Messages[1].Payload))
	assert.Equal(t, want.Messages[1].Attribution, got.Messages[1].Attribution)

	assert.Contains(t, obs.queries, "save_chat")
	assert.Contains(t, obs.queries, "load_chat")
}

func TestChatRepository_AppendsOnlyNewMessages(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	s := sampleState("chat-2")
	first := s
	first.Messages = s.Messages[:1]
	require.NoError(t, repo.Save(ctx, first))
	// saving the same snapshot twice is a no-op
	require.NoError(t, repo.Save(ctx, first))

	s.TurnID = "turn-2"
	s.UpdatedAt = s.UpdatedAt.Add(time.Second)
	require.NoError(t, repo.Save(ctx, s))

	got, err := repo.Load(ctx, "chat-2")
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, types.RoleUser, got.Messages[0].Role)
	assert.Equal(t, types.RoleAssistant, got.Messages[1].Role)
	assert.Equal(t, "turn-2", got.TurnID)
	assert.True(t, s.UpdatedAt.Equal(got.UpdatedAt))
}

func TestChatRepository_RejectsShrinkingHistory(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	s := sampleState("chat-3")
	require.NoError(t, repo.Save(ctx, s))

	s.Messages = s.Messages[:1]
	err := repo.Save(ctx, s)
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))
}

func TestChatRepository_NotFound(t *testing.T) {
	repo, _ := newSQLiteRepository(t)

	_, err := repo.Load(context.Background(), "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))

	err = repo.Delete(context.Background(), "missing")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestChatRepository_Delete(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleState("chat-4")))
	require.NoError(t, repo.Delete(ctx, "chat-4"))

	_, err := repo.Load(ctx, "chat-4")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestChatRepository_BacksConversationStore(t *testing.T) {
	repo, _ := newSQLiteRepository(t)
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store := conversation.NewStore(logger, conversation.WithRepository(repo))
	conv := store.Create()

	turn, err := conv.BeginTurn()
	require.NoError(t, err)
	require.NoError(t, turn.AppendUser(types.NewUserMessage("hello")))
	require.NoError(t, turn.AppendAssistant(types.NewAssistantMessage("hi there")))
	turn.End()
	require.NoError(t, store.Persist(ctx, conv))

	// a fresh store restores the chat from the database
	fresh := conversation.NewStore(logger, conversation.WithRepository(repo))
	restored, err := fresh.Get(ctx, conv.ID())
	require.NoError(t, err)
	assert.Equal(t, 2, restored.Len())
	assert.Equal(t, "hello", restored.Snapshot().Title)
}
