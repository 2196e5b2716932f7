// Package types provides core types shared across the streamform service.
// This package has ZERO dependencies on other streamform packages to avoid circular imports.
package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// Source is a single attribution entry attached to an assistant message.
type Source struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Message represents a committed conversation message.
// Content always holds a plain-text rendering; Payload carries the structured
// answer for schema-guided turns.
type Message struct {
	ID          string          `json:"id"`
	Role        Role            `json:"role"`
	Content     string          `json:"content"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attribution []Source        `json:"attribution,omitempty"`
	Name        string          `json:"name,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewID returns a fresh opaque identifier.
func NewID() string {
	return uuid.NewString()
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// WithPayload attaches a structured payload to the message.
func (m Message) WithPayload(payload json.RawMessage) Message {
	m.Payload = payload
	return m
}

// WithAttribution attaches sources to the message.
func (m Message) WithAttribution(sources []Source) Message {
	m.Attribution = sources
	return m
}

// WithName sets the participant name forwarded to the model.
func (m Message) WithName(name string) Message {
	m.Name = name
	return m
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Payload != nil {
		out.Payload = append(json.RawMessage(nil), m.Payload...)
	}
	if m.Attribution != nil {
		out.Attribution = append([]Source(nil), m.Attribution...)
	}
	return out
}
