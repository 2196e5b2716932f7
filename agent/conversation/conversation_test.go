package conversation

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/streamform/types"
)

func TestNew(t *testing.T) {
	c := New("")
	assert.NotEmpty(t, c.ID())
	assert.Equal(t, 0, c.Len())

	s := c.Snapshot()
	assert.NotEmpty(t, s.TurnID)
	assert.NotNil(t, s.Messages)

	seeded := New("chat-1", WithSystemMessage("be brief"))
	assert.Equal(t, "chat-1", seeded.ID())
	require.Equal(t, 1, seeded.Len())
	assert.Equal(t, types.RoleSystem, seeded.Messages()[0].Role)
}

func TestTurn_AppendFlow(t *testing.T) {
	c := New("chat-1", WithSystemMessage("sys"))
	before := c.Snapshot().TurnID

	turn, err := c.BeginTurn()
	require.NoError(t, err)
	assert.NotEqual(t, before, turn.ID(), "each turn gets a fresh id")
	assert.True(t, c.Busy())

	require.NoError(t, turn.AppendUser(types.NewUserMessage("hello")))
	require.NoError(t, turn.AppendAssistant(types.NewAssistantMessage("hi")))
	turn.End()
	turn.End()

	assert.False(t, c.Busy())
	msgs := c.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, []types.Role{types.RoleSystem, types.RoleUser, types.RoleAssistant},
		[]types.Role{msgs[0].Role, msgs[1].Role, msgs[2].Role})
	assert.Equal(t, "hello", c.Snapshot().Title)
	assert.Equal(t, turn.ID(), c.Snapshot().TurnID)
}

func TestTurn_Violations(t *testing.T) {
	c := New("chat-1")
	turn, err := c.BeginTurn()
	require.NoError(t, err)

	err = turn.AppendAssistant(types.NewAssistantMessage("early"))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))

	err = turn.AppendUser(types.NewAssistantMessage("wrong role"))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	require.NoError(t, turn.AppendUser(types.NewUserMessage("q")))
	err = turn.AppendUser(types.NewUserMessage("again"))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))

	turn.End()
	err = turn.AppendAssistant(types.NewAssistantMessage("late"))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidTransition))
	assert.Equal(t, 1, c.Len())
}

func TestBeginTurn_Busy(t *testing.T) {
	c := New("chat-1")
	first, err := c.BeginTurn()
	require.NoError(t, err)

	_, err = c.BeginTurn()
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrAgentBusy))

	first.End()
	second, err := c.BeginTurn()
	require.NoError(t, err)
	second.End()
}

func TestBeginTurn_ConcurrentSingleWinner(t *testing.T) {
	c := New("chat-1")

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.BeginTurn(); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func TestSnapshot_IsDetached(t *testing.T) {
	c := New("chat-1")
	turn, _ := c.BeginTurn()
	require.NoError(t, turn.AppendUser(types.NewUserMessage("q").WithPayload([]byte(`{"x":1}`))))
	turn.End()

	s := c.Snapshot()
	s.Messages[0].Content = "mutated"
	s.Messages[0].Payload[0] = '['

	again := c.Snapshot()
	assert.Equal(t, "q", again.Messages[0].Content)
	assert.Equal(t, `{"x":1}`, string(again.Messages[0].Payload))
}

func TestTitle_Truncated(t *testing.T) {
	c := New("chat-1")
	turn, _ := c.BeginTurn()
	long := strings.Repeat("é", MaxTitleRunes+20)
	require.NoError(t, turn.AppendUser(types.NewUserMessage(long)))
	turn.End()

	assert.Equal(t, MaxTitleRunes, len([]rune(c.Snapshot().Title)))
}

func TestExportImportRestore(t *testing.T) {
	c := New("chat-1", WithSystemMessage("sys"))
	turn, _ := c.BeginTurn()
	require.NoError(t, turn.AppendUser(types.NewUserMessage("q")))
	require.NoError(t, turn.AppendAssistant(types.NewAssistantMessage("a").
		WithAttribution([]types.Source{{Title: "Doc", URL: "https://d"}})))
	turn.End()

	data, err := c.Snapshot().Export()
	require.NoError(t, err)

	s, err := Import(data)
	require.NoError(t, err)
	restored := Restore(s)

	assert.Equal(t, c.ID(), restored.ID())
	assert.Equal(t, c.Snapshot().TurnID, restored.Snapshot().TurnID)
	require.Equal(t, 3, restored.Len())
	assert.Equal(t, "Doc", restored.Messages()[2].Attribution[0].Title)
	assert.False(t, restored.Busy())

	_, err = Import([]byte(`{"messages":[]}`))
	assert.Error(t, err)
	_, err = Import([]byte(`{`))
	assert.Error(t, err)
}
