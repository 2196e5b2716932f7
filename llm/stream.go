package llm

import (
	"context"
	"strings"
)

// StreamEvent is one element of a model stream as seen by the turn controller.
// Exactly one of Text, Value or Err is meaningful:
// free-text streams carry Text fragments, structured streams carry the whole
// partial Value decoded so far, and Err terminates the stream.
type StreamEvent struct {
	Text  string
	Value any
	Err   error
}

// ModelStream delivers events in arrival order. Closing it signals end of stream.
type ModelStream <-chan StreamEvent

// Opener opens a model stream for a request.
type Opener interface {
	Open(ctx context.Context, req *ChatRequest) (ModelStream, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req *ChatRequest) (ModelStream, error)

// Open implements Opener.
func (f OpenerFunc) Open(ctx context.Context, req *ChatRequest) (ModelStream, error) {
	return f(ctx, req)
}

// ProviderOpener turns a Provider's chunk stream into a ModelStream, decoding
// partial JSON when the request is structured.
type ProviderOpener struct {
	Provider Provider
}

// NewProviderOpener wraps p.
func NewProviderOpener(p Provider) *ProviderOpener {
	return &ProviderOpener{Provider: p}
}

// Open implements Opener.
func (o *ProviderOpener) Open(ctx context.Context, req *ChatRequest) (ModelStream, error) {
	chunks, err := o.Provider.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	if req.Structured() {
		return JSONEvents(ctx, chunks), nil
	}
	return TextEvents(ctx, chunks), nil
}

// TextEvents forwards text deltas as Text events.
func TextEvents(ctx context.Context, chunks <-chan StreamChunk) ModelStream {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		for chunk := range chunks {
			var ev StreamEvent
			switch {
			case chunk.Err != nil:
				ev.Err = chunk.Err
			case chunk.Delta.Content != "":
				ev.Text = chunk.Delta.Content
			default:
				continue
			}
			if !send(ctx, out, ev) || ev.Err != nil {
				drain(chunks)
				return
			}
		}
	}()
	return out
}

// JSONEvents accumulates text deltas and emits the partial JSON value decoded
// from the accumulated text after every delta that changes it.
func JSONEvents(ctx context.Context, chunks <-chan StreamChunk) ModelStream {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		var buf strings.Builder
		for chunk := range chunks {
			if chunk.Err != nil {
				send(ctx, out, StreamEvent{Err: chunk.Err})
				drain(chunks)
				return
			}
			if chunk.Delta.Content == "" {
				continue
			}
			buf.WriteString(chunk.Delta.Content)

			value, ok, err := ParsePartialJSON(buf.String())
			if err != nil {
				send(ctx, out, StreamEvent{Err: &Error{
					Code:    ErrMalformedStream,
					Message: err.Error(),
				}})
				drain(chunks)
				return
			}
			if !ok {
				continue
			}
			if !send(ctx, out, StreamEvent{Value: value}) {
				drain(chunks)
				return
			}
		}
	}()
	return out
}

func send(ctx context.Context, out chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- ev:
		return true
	}
}

// drain consumes the rest of chunks so the producer can exit.
func drain(chunks <-chan StreamChunk) {
	go func() {
		for range chunks {
		}
	}()
}
