// Package conversation provides turn-keyed chat state with single-writer turn leases.
package conversation

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/BaSui01/streamform/types"
)

// MaxTitleRunes bounds the chat title derived from the first user message.
const MaxTitleRunes = 100

// State is the read model of a conversation.
type State struct {
	ChatID    string          `json:"chat_id"`
	Title     string          `json:"title,omitempty"`
	TurnID    string          `json:"turn_id"`
	Messages  []types.Message `json:"messages"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := s
	out.Messages = make([]types.Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Export serializes the state to JSON.
func (s State) Export() ([]byte, error) {
	return json.Marshal(s)
}

// Import deserializes a state from JSON.
func Import(data []byte) (State, error) {
	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return State{}, fmt.Errorf("decode conversation state: %w", err)
	}
	if s.ChatID == "" {
		return State{}, fmt.Errorf("decode conversation state: missing chat_id")
	}
	return s, nil
}

// Conversation holds the append-only message history of one chat.
// Messages are appended only through a Turn obtained from BeginTurn.
type Conversation struct {
	mu        sync.RWMutex
	id        string
	title     string
	turnID    string
	messages  []types.Message
	createdAt time.Time
	updatedAt time.Time
	turn      *Turn
}

// Option configures a new Conversation.
type Option func(*Conversation)

// WithSystemMessage seeds the history with a system message.
// System messages always precede the first user entry.
func WithSystemMessage(content string) Option {
	return func(c *Conversation) {
		c.messages = append(c.messages, types.NewSystemMessage(content))
	}
}

// New creates an empty conversation with a fresh turn id.
// An empty id is replaced by a generated one.
func New(id string, opts ...Option) *Conversation {
	if id == "" {
		id = types.NewID()
	}
	now := time.Now()
	c := &Conversation{
		id:        id,
		turnID:    types.NewID(),
		messages:  []types.Message{},
		createdAt: now,
		updatedAt: now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Restore rebuilds a conversation from a previously exported state.
func Restore(s State) *Conversation {
	s = s.Clone()
	if s.TurnID == "" {
		s.TurnID = types.NewID()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	return &Conversation{
		id:        s.ChatID,
		title:     s.Title,
		turnID:    s.TurnID,
		messages:  s.Messages,
		createdAt: s.CreatedAt,
		updatedAt: s.UpdatedAt,
	}
}

// ID returns the chat identifier.
func (c *Conversation) ID() string {
	return c.id
}

// Snapshot returns a deep copy of the current state.
func (c *Conversation) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{
		ChatID:    c.id,
		Title:     c.title,
		TurnID:    c.turnID,
		Messages:  c.messages,
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}
	return s.Clone()
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []types.Message {
	return c.Snapshot().Messages
}

// Len returns the number of committed messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Busy reports whether a turn is in progress.
func (c *Conversation) Busy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.turn != nil
}

// BeginTurn acquires the single-writer lease for a new turn.
// It fails with types.ErrAgentBusy while another turn is open.
func (c *Conversation) BeginTurn() (*Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.turn != nil {
		return nil, types.NewError(types.ErrAgentBusy, fmt.Sprintf("chat %s already has a turn in progress", c.id)).
			WithHTTPStatus(409)
	}
	c.turnID = types.NewID()
	c.turn = &Turn{conv: c, id: c.turnID}
	return c.turn, nil
}

// Turn is the exclusive write lease of one request/response cycle.
type Turn struct {
	conv   *Conversation
	id     string
	user   bool
	closed bool
}

// ID returns the turn identifier.
func (t *Turn) ID() string {
	return t.id
}

// AppendUser records the inbound user message. It must be the first append of the turn.
func (t *Turn) AppendUser(msg types.Message) error {
	if msg.Role != types.RoleUser {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("expected user message, got %q", msg.Role))
	}
	return t.append(msg, func() error {
		if t.user {
			return types.NewError(types.ErrInvalidTransition, "user message already recorded for this turn")
		}
		t.user = true
		return nil
	})
}

// AppendAssistant commits the assistant reply of the turn.
func (t *Turn) AppendAssistant(msg types.Message) error {
	if msg.Role != types.RoleAssistant {
		return types.NewError(types.ErrInvalidRequest, fmt.Sprintf("expected assistant message, got %q", msg.Role))
	}
	return t.append(msg, func() error {
		if !t.user {
			return types.NewError(types.ErrInvalidTransition, "assistant message before user message")
		}
		return nil
	})
}

func (t *Turn) append(msg types.Message, check func() error) error {
	c := t.conv
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.closed || c.turn != t {
		return types.NewError(types.ErrInvalidTransition, "turn is closed")
	}
	if err := check(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = types.NewID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	if msg.Role == types.RoleUser && c.title == "" {
		c.title = truncateRunes(msg.Content, MaxTitleRunes)
	}
	c.messages = append(c.messages, msg.Clone())
	c.updatedAt = msg.CreatedAt
	return nil
}

// History returns the messages visible to the model for this turn.
func (t *Turn) History() []types.Message {
	return t.conv.Messages()
}

// End releases the lease. It is safe to call more than once.
func (t *Turn) End() {
	c := t.conv
	c.mu.Lock()
	defer c.mu.Unlock()

	t.closed = true
	if c.turn == t {
		c.turn = nil
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
