package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true)

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
}

func TestError_WrappedLookup(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("turn failed: %w", NewStreamError(errors.New("eof")))

	if !IsErrorCode(wrapped, ErrStreamError) {
		t.Fatalf("expected STREAM_ERROR through wrapping")
	}
	if !IsRetryable(wrapped) {
		t.Fatalf("stream errors are retryable")
	}
	if IsErrorCode(wrapped, ErrIncompatibleShape) {
		t.Fatalf("unexpected code match")
	}

	shape := NewIncompatibleShapeError(errors.New("bad"))
	if IsRetryable(shape) {
		t.Fatalf("incompatible shape must not be retryable")
	}
	if GetErrorCode(errors.New("plain")) != "" {
		t.Fatalf("plain errors carry no code")
	}
}

func TestRole_Valid(t *testing.T) {
	t.Parallel()

	for _, r := range []Role{RoleSystem, RoleUser, RoleAssistant} {
		if !r.Valid() {
			t.Fatalf("role %s should be valid", r)
		}
	}
	if Role("tool").Valid() {
		t.Fatalf("tool role is not part of the conversation model")
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	t.Parallel()

	m := NewAssistantMessage("hi").
		WithPayload([]byte(`{"a":1}`)).
		WithAttribution([]Source{{Title: "Doc"}})
	c := m.Clone()
	c.Payload[0] = 'x'
	c.Attribution[0].Title = "changed"

	if string(m.Payload) != `{"a":1}` || m.Attribution[0].Title != "Doc" {
		t.Fatalf("clone shares memory with original")
	}
	if m.ID == "" || m.CreatedAt.IsZero() {
		t.Fatalf("constructor must assign id and timestamp")
	}
}
