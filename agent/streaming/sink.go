package streaming

import (
	"context"
	"sync"

	"github.com/BaSui01/streamform/types"
)

// Sink receives the snapshots of one turn. Update may be called any number of
// times, Done exactly once; afterwards every call returns ErrSinkClosed.
type Sink interface {
	Update(ctx context.Context, snapshot any) error
	Done(ctx context.Context, final any) error
}

// ErrSinkClosed is returned by a sink after Done.
var ErrSinkClosed error = types.NewError(types.ErrSinkClosed, "sink is closed")

// SinkEventType 区分快照与终止事件。
type SinkEventType string

const (
	SinkEventSnapshot SinkEventType = "snapshot"
	SinkEventDone     SinkEventType = "done"
)

// SinkEvent is one publication as carried over a transport.
type SinkEvent struct {
	Type SinkEventType `json:"type"`
	Data any           `json:"data"`
}

// ChannelSink publishes events on a channel that is closed after Done.
type ChannelSink struct {
	mu     sync.Mutex
	ch     chan SinkEvent
	closed bool
}

// NewChannelSink creates a sink with the given buffer size.
func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{ch: make(chan SinkEvent, buffer)}
}

// Events returns the receive side.
func (s *ChannelSink) Events() <-chan SinkEvent { return s.ch }

// Update implements Sink.
func (s *ChannelSink) Update(ctx context.Context, snapshot any) error {
	return s.publish(ctx, SinkEvent{Type: SinkEventSnapshot, Data: snapshot}, false)
}

// Done implements Sink.
func (s *ChannelSink) Done(ctx context.Context, final any) error {
	return s.publish(ctx, SinkEvent{Type: SinkEventDone, Data: final}, true)
}

func (s *ChannelSink) publish(ctx context.Context, ev SinkEvent, last bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	if last {
		s.closed = true
		defer close(s.ch)
	}
	select {
	case s.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RecordingSink keeps every publication in memory.
type RecordingSink struct {
	mu        sync.Mutex
	snapshots []any
	final     any
	done      bool
}

// Update implements Sink.
func (s *RecordingSink) Update(_ context.Context, snapshot any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSinkClosed
	}
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

// Done implements Sink.
func (s *RecordingSink) Done(_ context.Context, final any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrSinkClosed
	}
	s.done = true
	s.final = final
	return nil
}

// Snapshots returns the published snapshots in order.
func (s *RecordingSink) Snapshots() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.snapshots...)
}

// Final returns the Done value and whether Done was called.
func (s *RecordingSink) Final() (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.final, s.done
}
