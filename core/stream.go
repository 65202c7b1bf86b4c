package core

import (
	"context"
	"sync"
)

// StreamEventType discriminates stream events.
type StreamEventType string

// Stream event types produced by the model invocation loop.
const (
	StreamEventTextDelta  StreamEventType = "text-delta"
	StreamEventToolCall   StreamEventType = "tool-call"
	StreamEventToolResult StreamEventType = "tool-result"
	StreamEventError      StreamEventType = "error"
	StreamEventFinish     StreamEventType = "finish"
)

// StreamEvent is one incremental piece of a streamed generation.
type StreamEvent struct {
	Type         StreamEventType `json:"type"`
	Agent        string          `json:"agent,omitempty"`
	Text         string          `json:"text,omitempty"`
	ToolCall     *ToolCall       `json:"toolCall,omitempty"`
	ToolResult   *ToolResult     `json:"toolResult,omitempty"`
	Error        string          `json:"error,omitempty"`
	FinishReason string          `json:"finishReason,omitempty"`
}

// DefaultStreamBuffer is the channel capacity used by NewStream callers that
// have no better estimate.
const DefaultStreamBuffer = 64

// Stream is the handle returned by Agent.Stream. A producer goroutine pushes
// events and terminates the stream exactly once with End or EndWithError;
// consumers range over Events and/or call Result.
type Stream struct {
	events chan StreamEvent
	done   chan struct{}
	once   sync.Once
	cancel context.CancelFunc

	result *GenerationResult
	err    error
}

// NewStream creates a stream. cancel, when non-nil, is invoked by Cancel to
// abort the producer.
func NewStream(buffer int, cancel context.CancelFunc) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		events: make(chan StreamEvent, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
}

// Push delivers an event, blocking until it is buffered or ctx is done.
func (s *Stream) Push(ctx context.Context, ev StreamEvent) error {
	select {
	case s.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// End closes the stream successfully.
func (s *Stream) End(result *GenerationResult) {
	s.once.Do(func() {
		s.result = result
		close(s.events)
		close(s.done)
	})
}

// EndWithError closes the stream with a terminal error.
func (s *Stream) EndWithError(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.events)
		close(s.done)
	})
}

// Events returns the event channel. It is closed when the stream ends.
func (s *Stream) Events() <-chan StreamEvent { return s.events }

// Result drains any unread events and returns the final outcome.
func (s *Stream) Result() (*GenerationResult, error) {
	for range s.events {
	}
	<-s.done
	return s.result, s.err
}

// Cancel aborts the producer. Consumers that stop reading early must call it.
func (s *Stream) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// ReplayStream returns a stream that first yields buffered, then every
// remaining event of rest, and finally rest's result.
func ReplayStream(ctx context.Context, buffered []StreamEvent, rest *Stream) *Stream {
	out := NewStream(len(buffered)+DefaultStreamBuffer, rest.Cancel)

	go func() {
		for _, ev := range buffered {
			if err := out.Push(ctx, ev); err != nil {
				rest.Cancel()
				out.EndWithError(err)
				return
			}
		}

		for ev := range rest.Events() {
			if err := out.Push(ctx, ev); err != nil {
				rest.Cancel()
				out.EndWithError(err)
				return
			}
		}

		res, err := rest.Result()
		if err != nil {
			out.EndWithError(err)
			return
		}
		out.End(res)
	}()

	return out
}
