package streaming

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/BaSui01/streamform/agent/structured"
	"github.com/BaSui01/streamform/llm"
	"github.com/BaSui01/streamform/types"
)

// 内置响应模式名称
const (
	ModeText  = "text"
	ModeQA    = "qa"
	ModeSteps = "steps"
)

// Mode parameterizes a turn: what the model is asked for, how partial values
// are shown, and how the final value is committed.
type Mode struct {
	Name string

	// SystemPrompt is sent ahead of the history. It is never stored in the conversation.
	SystemPrompt string

	// Schema is the root descriptor of a structured turn; nil selects free text.
	Schema structured.Descriptor

	// Project maps a reconciled value to the UI snapshot. nil publishes the value as is.
	Project func(value any) any

	// Render produces the committed message content from the final value.
	Render func(value any) string

	// Attribution extracts sources from the final value.
	Attribution func(value any) []types.Source
}

// Structured reports whether the mode streams schema-guided values.
func (m Mode) Structured() bool { return m.Schema != nil }

func (m Mode) project(value any) any {
	if m.Project == nil {
		return value
	}
	return m.Project(value)
}

func (m Mode) render(value any) string {
	if m.Render != nil {
		return m.Render(value)
	}
	if s, ok := value.(string); ok {
		return s
	}
	data, _ := json.Marshal(value)
	return string(data)
}

// systemPrompt returns the full system prompt, with the JSON schema appended for
// structured modes.
func (m Mode) systemPrompt() (string, error) {
	if !m.Structured() {
		return m.SystemPrompt, nil
	}
	schema, err := structured.MarshalJSONSchema(m.Schema)
	if err != nil {
		return "", fmt.Errorf("export %s schema: %w", m.Name, err)
	}
	var b strings.Builder
	if m.SystemPrompt != "" {
		b.WriteString(m.SystemPrompt)
		b.WriteString("\n\n")
	}
	b.WriteString("Respond only with a JSON document that conforms to this JSON schema:\n")
	b.WriteString(schema)
	return b.String(), nil
}

// responseFormat asks the provider for a JSON document.
func (m Mode) responseFormat() (*llm.ResponseFormat, error) {
	if !m.Structured() {
		return nil, nil
	}
	schema, err := structured.MarshalJSONSchema(m.Schema)
	if err != nil {
		return nil, fmt.Errorf("export %s schema: %w", m.Name, err)
	}
	return &llm.ResponseFormat{
		Type:   "json_schema",
		Name:   m.Name,
		Schema: json.RawMessage(schema),
	}, nil
}

// FreeTextMode streams plain text. The UI shows the concatenated text so far.
func FreeTextMode() Mode {
	return Mode{
		Name: ModeText,
		SystemPrompt: "You are a helpful assistant. " +
			"Include inline citations for the information you provide in the format of: [Title](URL).",
	}
}

// SchemaMode streams values of schema. render may be nil.
func SchemaMode(name string, schema structured.Descriptor, render func(any) string) Mode {
	return Mode{
		Name:        name,
		Schema:      schema,
		Render:      render,
		Attribution: structured.Attribution,
	}
}

// QAMode streams InkeepMessageSchema values; the UI shows message.content only.
func QAMode() Mode {
	m := SchemaMode(ModeQA, structured.InkeepMessageSchema(), structured.QAContent)
	m.SystemPrompt = "Answer the user question based only on the documentation you know. " +
		"Cite the records you used in recordsCited."
	m.Project = func(v any) any { return structured.QAContent(v) }
	return m
}

// StepsMode streams StepByStepSchema values; the UI shows the steps list.
func StepsMode() Mode {
	m := SchemaMode(ModeSteps, structured.StepByStepSchema(), structured.StepsMarkdown)
	m.SystemPrompt = "Generate step-by-step instructions to answer the user questions. " +
		"Break it down to be as granular as possible. Always generate more than one step."
	m.Project = func(v any) any {
		if steps := structured.Steps(v); steps != nil {
			return steps
		}
		return []any{}
	}
	return m
}

// ModeByName returns a built-in mode. An empty name selects free text.
func ModeByName(name string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", ModeText:
		return FreeTextMode(), nil
	case ModeQA:
		return QAMode(), nil
	case ModeSteps:
		return StepsMode(), nil
	default:
		return Mode{}, types.NewError(types.ErrInvalidRequest, fmt.Sprintf("unknown mode %q", name)).
			WithHTTPStatus(400)
	}
}
