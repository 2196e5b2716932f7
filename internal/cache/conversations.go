package cache

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/streamform/agent/conversation"
)

// ConversationRepository 把对话快照以 JSON 形式缓存在 Redis 中，
// 实现 conversation.Repository。通常作为 MultiRepository 的第一层。
type ConversationRepository struct {
	cache  *Manager
	ttl    time.Duration
	logger *zap.Logger
}

// NewConversationRepository 创建 Redis 对话仓储。ttl 为 0 时使用缓存默认过期时间。
func NewConversationRepository(m *Manager, ttl time.Duration, logger *zap.Logger) *ConversationRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationRepository{
		cache:  m,
		ttl:    ttl,
		logger: logger.With(zap.String("component", "conversation_cache")),
	}
}

func (r *ConversationRepository) key(chatID string) string {
	return r.cache.Key("chat", chatID)
}

// Save implements conversation.Repository.
func (r *ConversationRepository) Save(ctx context.Context, s conversation.State) error {
	if err := r.cache.SetJSON(ctx, r.key(s.ChatID), s, r.ttl); err != nil {
		return fmt.Errorf("cache chat %s: %w", s.ChatID, err)
	}
	return nil
}

// Load implements conversation.Repository.
func (r *ConversationRepository) Load(ctx context.Context, chatID string) (conversation.State, error) {
	var s conversation.State
	err := r.cache.GetJSON(ctx, r.key(chatID), &s)
	if IsCacheMiss(err) {
		return conversation.State{}, conversation.ErrNotFound(chatID)
	}
	if err != nil {
		return conversation.State{}, fmt.Errorf("load cached chat %s: %w", chatID, err)
	}
	if s.ChatID != chatID {
		r.logger.Warn("cached chat id mismatch, ignoring entry",
			zap.String("want", chatID), zap.String("got", s.ChatID))
		return conversation.State{}, conversation.ErrNotFound(chatID)
	}
	return s, nil
}

// Delete 删除缓存的对话
func (r *ConversationRepository) Delete(ctx context.Context, chatID string) error {
	return r.cache.Delete(ctx, r.key(chatID))
}
