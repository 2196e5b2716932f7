package streaming

import (
	"errors"
	"fmt"
	"sync"

	"github.com/BaSui01/streamform/types"
)

// TurnState 表示一轮对话在控制器中的阶段。
type TurnState string

const (
	StateIdle          TurnState = "idle"
	StateAwaitingModel TurnState = "awaiting_model"
	StateStreaming     TurnState = "streaming"
	StateCommitting    TurnState = "committing"
)

// 合法的状态迁移
var transitions = map[TurnState][]TurnState{
	StateIdle:          {StateAwaitingModel},
	StateAwaitingModel: {StateStreaming, StateIdle},
	StateStreaming:     {StateStreaming, StateCommitting, StateIdle},
	StateCommitting:    {StateIdle},
}

// ErrInvalidTransition is the cause of every rejected state change.
var ErrInvalidTransition = errors.New("invalid turn state transition")

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to TurnState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// turnMachine tracks one turn's state. The consumer loop is its only writer;
// State may be read concurrently.
type turnMachine struct {
	mu       sync.RWMutex
	state    TurnState
	onChange func(from, to TurnState)
}

func newTurnMachine(onChange func(from, to TurnState)) *turnMachine {
	return &turnMachine{state: StateIdle, onChange: onChange}
}

func (m *turnMachine) State() TurnState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *turnMachine) Transition(to TurnState) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return types.NewError(types.ErrInvalidTransition, fmt.Sprintf("%s -> %s", from, to)).
			WithCause(ErrInvalidTransition)
	}
	m.state = to
	m.mu.Unlock()

	if m.onChange != nil && from != to {
		m.onChange(from, to)
	}
	return nil
}
