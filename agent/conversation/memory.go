package conversation

import (
	"context"
	"sync"
)

// MemoryRepository keeps snapshots in process memory.
type MemoryRepository struct {
	mu     sync.RWMutex
	states map[string]State
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{states: make(map[string]State)}
}

// Save implements Repository.
func (r *MemoryRepository) Save(_ context.Context, s State) error {
	r.mu.Lock()
	r.states[s.ChatID] = s.Clone()
	r.mu.Unlock()
	return nil
}

// Load implements Repository.
func (r *MemoryRepository) Load(_ context.Context, chatID string) (State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[chatID]
	if !ok {
		return State{}, ErrNotFound(chatID)
	}
	return s.Clone(), nil
}
