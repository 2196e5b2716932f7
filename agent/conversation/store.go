package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/streamform/types"
)

// Repository persists conversation snapshots outside the process.
type Repository interface {
	// Save stores the full state, replacing any previous version.
	Save(ctx context.Context, s State) error
	// Load returns the stored state or an error with code types.ErrNotFound.
	Load(ctx context.Context, chatID string) (State, error)
}

// ErrNotFound builds the error returned by repositories for unknown chats.
func ErrNotFound(chatID string) error {
	return types.NewError(types.ErrNotFound, fmt.Sprintf("chat %s not found", chatID)).WithHTTPStatus(404)
}

// ====== Store ======

// Store is the process-scoped registry of live conversations.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*Conversation
	repo          Repository
	systemPrompt  string
	logger        *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithRepository backs the store with durable storage.
func WithRepository(repo Repository) StoreOption {
	return func(s *Store) { s.repo = repo }
}

// WithDefaultSystemPrompt seeds new conversations with a system message.
func WithDefaultSystemPrompt(prompt string) StoreOption {
	return func(s *Store) { s.systemPrompt = prompt }
}

// NewStore creates an empty store.
func NewStore(logger *zap.Logger, opts ...StoreOption) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		conversations: make(map[string]*Conversation),
		logger:        logger.With(zap.String("component", "conversation_store")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create registers a new empty conversation.
func (s *Store) Create() *Conversation {
	var opts []Option
	if s.systemPrompt != "" {
		opts = append(opts, WithSystemMessage(s.systemPrompt))
	}
	conv := New("", opts...)

	s.mu.Lock()
	s.conversations[conv.ID()] = conv
	s.mu.Unlock()
	return conv
}

// Get returns a live conversation, loading it from the repository on a miss.
func (s *Store) Get(ctx context.Context, chatID string) (*Conversation, error) {
	s.mu.RLock()
	conv, ok := s.conversations[chatID]
	s.mu.RUnlock()
	if ok {
		return conv, nil
	}
	if s.repo == nil {
		return nil, ErrNotFound(chatID)
	}

	state, err := s.repo.Load(ctx, chatID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[chatID]; ok {
		return existing, nil
	}
	conv = Restore(state)
	s.conversations[chatID] = conv
	s.logger.Debug("conversation restored",
		zap.String("chat_id", chatID),
		zap.Int("messages", len(state.Messages)))
	return conv, nil
}

// GetOrCreate returns the conversation for chatID, creating it when unknown.
func (s *Store) GetOrCreate(ctx context.Context, chatID string) (*Conversation, error) {
	conv, err := s.Get(ctx, chatID)
	if err == nil {
		return conv, nil
	}
	if !types.IsErrorCode(err, types.ErrNotFound) {
		return nil, err
	}

	var opts []Option
	if s.systemPrompt != "" {
		opts = append(opts, WithSystemMessage(s.systemPrompt))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.conversations[chatID]; ok {
		return existing, nil
	}
	conv = New(chatID, opts...)
	s.conversations[conv.ID()] = conv
	return conv, nil
}

// Persist writes the conversation snapshot to the repository, if any.
func (s *Store) Persist(ctx context.Context, conv *Conversation) error {
	if s.repo == nil {
		return nil
	}
	if err := s.repo.Save(ctx, conv.Snapshot()); err != nil {
		return fmt.Errorf("persist chat %s: %w", conv.ID(), err)
	}
	return nil
}

// Evict drops a conversation from memory. Durable copies are kept.
func (s *Store) Evict(chatID string) {
	s.mu.Lock()
	delete(s.conversations, chatID)
	s.mu.Unlock()
}

// Len returns the number of live conversations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}

// ====== MultiRepository ======

// MultiRepository layers repositories from fastest to most durable.
// Save writes to every layer; Load reads the first layer that has the chat and
// backfills the faster layers.
type MultiRepository struct {
	layers []Repository
	logger *zap.Logger
}

// NewMultiRepository layers the given repositories. Nil entries are skipped.
func NewMultiRepository(logger *zap.Logger, layers ...Repository) *MultiRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MultiRepository{logger: logger.With(zap.String("component", "conversation_repository"))}
	for _, l := range layers {
		if l != nil {
			m.layers = append(m.layers, l)
		}
	}
	return m
}

// Save implements Repository.
func (m *MultiRepository) Save(ctx context.Context, s State) error {
	var errs []error
	for _, l := range m.layers {
		if err := l.Save(ctx, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Load implements Repository.
func (m *MultiRepository) Load(ctx context.Context, chatID string) (State, error) {
	for i, l := range m.layers {
		s, err := l.Load(ctx, chatID)
		if err != nil {
			if !types.IsErrorCode(err, types.ErrNotFound) {
				m.logger.Warn("repository layer load failed",
					zap.Int("layer", i), zap.String("chat_id", chatID), zap.Error(err))
			}
			continue
		}
		for j := 0; j < i; j++ {
			if err := m.layers[j].Save(ctx, s); err != nil {
				m.logger.Warn("repository backfill failed",
					zap.Int("layer", j), zap.String("chat_id", chatID), zap.Error(err))
			}
		}
		return s, nil
	}
	return State{}, ErrNotFound(chatID)
}
