package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/types"
)

func setupConversationCache(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *ConversationRepository) {
	t.Helper()
	mr := miniredis.RunT(t)

	manager, err := NewManager(Config{
		Addr:       mr.Addr(),
		KeyPrefix:  "sf:",
		DefaultTTL: time.Hour,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	return mr, NewConversationRepository(manager, ttl, zaptest.NewLogger(t))
}

func sampleState(chatID string) conversation.State {
	now := time.Now().UTC()
	return conversation.State{
		ChatID: chatID,
		Title:  "hello",
		TurnID: "turn-1",
		Messages: []types.Message{
			types.NewUserMessage("hello"),
			types.NewAssistantMessage("hi").
				WithAttribution([]types.Source{{Title: "Docs", URL: "https://example.com"}}),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestConversationRepository_SaveAndLoad(t *testing.T) {
	mr, repo := setupConversationCache(t, 10*time.Minute)
	ctx := context.Background()

	want := sampleState("c1")
	require.NoError(t, repo.Save(ctx, want))
	assert.True(t, mr.Exists("sf:chat:c1"))
	assert.Equal(t, 10*time.Minute, mr.TTL("sf:chat:c1"))

	got, err := repo.Load(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, want.ChatID, got.ChatID)
	assert.Equal(t, want.TurnID, got.TurnID)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, want.Messages[1].Attribution, got.Messages[1].Attribution)
}

func TestConversationRepository_DefaultTTL(t *testing.T) {
	mr, repo := setupConversationCache(t, 0)

	require.NoError(t, repo.Save(context.Background(), sampleState("c2")))
	assert.Equal(t, time.Hour, mr.TTL("sf:chat:c2"))
}

func TestConversationRepository_Miss(t *testing.T) {
	_, repo := setupConversationCache(t, 0)

	_, err := repo.Load(context.Background(), "nope")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestConversationRepository_Expiry(t *testing.T) {
	mr, repo := setupConversationCache(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleState("c3")))
	mr.FastForward(2 * time.Minute)

	_, err := repo.Load(ctx, "c3")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestConversationRepository_CorruptEntry(t *testing.T) {
	mr, repo := setupConversationCache(t, 0)
	require.NoError(t, mr.Set("sf:chat:c4", "{not json"))

	_, err := repo.Load(context.Background(), "c4")
	require.Error(t, err)
	assert.False(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestConversationRepository_Delete(t *testing.T) {
	mr, repo := setupConversationCache(t, 0)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, sampleState("c5")))
	require.NoError(t, repo.Delete(ctx, "c5"))
	assert.False(t, mr.Exists("sf:chat:c5"))
}

func TestConversationRepository_LayeredBeforeDurable(t *testing.T) {
	_, repo := setupConversationCache(t, 0)
	ctx := context.Background()
	durable := conversation.NewMemoryRepository()

	s := sampleState("c6")
	require.NoError(t, durable.Save(ctx, s))

	multi := conversation.NewMultiRepository(zap.NewNop(), repo, durable)
	got, err := multi.Load(ctx, "c6")
	require.NoError(t, err)
	assert.Equal(t, "c6", got.ChatID)

	// the miss on the cache layer was backfilled
	cached, err := repo.Load(ctx, "c6")
	require.NoError(t, err)
	assert.Len(t, cached.Messages, 2)
}
