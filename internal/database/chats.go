package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BaSui01/streamform/agent/conversation"
	"github.com/BaSui01/streamform/types"
)

// =============================================================================
// 📦 持久化模型
// =============================================================================

// ChatRecord 是一个对话的持久化行
type ChatRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Title     string `gorm:"size:512"`
	TurnID    string `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time       `gorm:"autoUpdateTime:false"`
	Messages  []MessageRecord `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

// TableName implements gorm's tabler.
func (ChatRecord) TableName() string { return "chats" }

// MessageRecord 是一条已提交消息的持久化行。Seq 为消息在对话中的位置。
type MessageRecord struct {
	ID          string `gorm:"primaryKey;size:64"`
	ChatID      string `gorm:"size:64;uniqueIndex:idx_chat_seq,priority:1"`
	Seq         int    `gorm:"uniqueIndex:idx_chat_seq,priority:2"`
	Role        string `gorm:"size:16"`
	Name        string `gorm:"size:128"`
	Content     string
	Payload     string
	Attribution string
	CreatedAt   time.Time
}

// TableName implements gorm's tabler.
func (MessageRecord) TableName() string { return "chat_messages" }

// =============================================================================
// 🗂️ ChatRepository
// =============================================================================

// ChatRepository 把对话快照保存到关系数据库，实现 conversation.Repository。
// 历史只追加，Save 只插入尚未存储的消息。
type ChatRepository struct {
	pool       *PoolManager
	maxRetries int
	logger     *zap.Logger
}

// NewChatRepository 创建对话仓储
func NewChatRepository(pool *PoolManager, logger *zap.Logger) *ChatRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatRepository{
		pool:       pool,
		maxRetries: 3,
		logger:     logger.With(zap.String("component", "chat_repository")),
	}
}

// Migrate 创建或更新表结构
func (r *ChatRepository) Migrate(ctx context.Context) error {
	if err := r.pool.DB().WithContext(ctx).AutoMigrate(&ChatRecord{}, &MessageRecord{}); err != nil {
		return fmt.Errorf("migrate chat tables: %w", err)
	}
	return nil
}

// Save implements conversation.Repository.
func (r *ChatRepository) Save(ctx context.Context, s conversation.State) error {
	defer r.pool.observe("save_chat", time.Now())

	err := r.pool.WithTransactionRetry(ctx, r.maxRetries, func(tx *gorm.DB) error {
		chat := ChatRecord{
			ID:        s.ChatID,
			Title:     s.Title,
			TurnID:    s.TurnID,
			CreatedAt: s.CreatedAt,
			UpdatedAt: s.UpdatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "turn_id", "updated_at"}),
		}).Create(&chat).Error; err != nil {
			return fmt.Errorf("upsert chat: %w", err)
		}

		var stored int64
		if err := tx.Model(&MessageRecord{}).Where("chat_id = ?", s.ChatID).Count(&stored).Error; err != nil {
			return fmt.Errorf("count messages: %w", err)
		}
		if int(stored) > len(s.Messages) {
			return types.NewError(types.ErrInvalidTransition,
				fmt.Sprintf("chat %s: snapshot has %d messages, %d already stored", s.ChatID, len(s.Messages), stored))
		}

		pending := s.Messages[stored:]
		if len(pending) == 0 {
			return nil
		}
		rows := make([]MessageRecord, 0, len(pending))
		for i, m := range pending {
			row, err := toRecord(s.ChatID, int(stored)+i, m)
			if err != nil {
				return err
			}
			rows = append(rows, row)
		}
		if err := tx.Create(&rows).Error; err != nil {
			return fmt.Errorf("insert messages: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to save chat", zap.String("chat_id", s.ChatID), zap.Error(err))
		return err
	}
	return nil
}

// Load implements conversation.Repository.
func (r *ChatRepository) Load(ctx context.Context, chatID string) (conversation.State, error) {
	defer r.pool.observe("load_chat", time.Now())

	var chat ChatRecord
	err := r.pool.DB().WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }).
		First(&chat, "id = ?", chatID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return conversation.State{}, conversation.ErrNotFound(chatID)
	}
	if err != nil {
		return conversation.State{}, fmt.Errorf("load chat %s: %w", chatID, err)
	}

	s := conversation.State{
		ChatID:    chat.ID,
		Title:     chat.Title,
		TurnID:    chat.TurnID,
		CreatedAt: chat.CreatedAt,
		UpdatedAt: chat.UpdatedAt,
		Messages:  make([]types.Message, 0, len(chat.Messages)),
	}
	for _, row := range chat.Messages {
		m, err := fromRecord(row)
		if err != nil {
			return conversation.State{}, fmt.Errorf("load chat %s: %w", chatID, err)
		}
		s.Messages = append(s.Messages, m)
	}
	return s, nil
}

// Delete 删除对话及其消息
func (r *ChatRepository) Delete(ctx context.Context, chatID string) error {
	defer r.pool.observe("delete_chat", time.Now())

	return r.pool.WithTransaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", chatID).Delete(&MessageRecord{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		res := tx.Delete(&ChatRecord{}, "id = ?", chatID)
		if res.Error != nil {
			return fmt.Errorf("delete chat: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return conversation.ErrNotFound(chatID)
		}
		return nil
	})
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

func toRecord(chatID string, seq int, m types.Message) (MessageRecord, error) {
	row := MessageRecord{
		ID:        m.ID,
		ChatID:    chatID,
		Seq:       seq,
		Role:      string(m.Role),
		Name:      m.Name,
		Content:   m.Content,
		Payload:   string(m.Payload),
		CreatedAt: m.CreatedAt,
	}
	if row.ID == "" {
		row.ID = types.NewID()
	}
	if len(m.Attribution) > 0 {
		data, err := json.Marshal(m.Attribution)
		if err != nil {
			return MessageRecord{}, fmt.Errorf("encode attribution: %w", err)
		}
		row.Attribution = string(data)
	}
	return row, nil
}

func fromRecord(row MessageRecord) (types.Message, error) {
	m := types.Message{
		ID:        row.ID,
		Role:      types.Role(row.Role),
		Name:      row.Name,
		Content:   row.Content,
		CreatedAt: row.CreatedAt,
	}
	if row.Payload != "" {
		m.Payload = json.RawMessage(row.Payload)
	}
	if row.Attribution != "" {
		if err := json.Unmarshal([]byte(row.Attribution), &m.Attribution); err != nil {
			return types.Message{}, fmt.Errorf("decode attribution of message %s: %w", row.ID, err)
		}
	}
	return m, nil
}
