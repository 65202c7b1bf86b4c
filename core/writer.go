package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Writer event types emitted by the framework itself. Tools and artifacts
// may emit any other type.
const (
	WriterEventStatus   = "status"
	WriterEventHandoff  = "handoff"
	WriterEventArtifact = "artifact"
)

// Router status values written while a request is being routed.
const (
	StatusRouting   = "determining sub-agent"
	StatusExecuting = "executing sub-agent"
)

// WriterEvent is one entry appended to a Writer.
type WriterEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewWriterEvent stamps a new event with an id and UTC timestamp.
func NewWriterEvent(eventType string, data any) WriterEvent {
	return WriterEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// Writer is the append-only sink scoped to one in-flight call. It is created
// by the outermost caller and passed down every delegation hop; agents never
// own one. Implementations must preserve the order in which writes are issued
// and be safe for concurrent use.
type Writer interface {
	Write(ctx context.Context, ev WriterEvent) error
}

// WriterFunc adapts a function to the Writer interface.
type WriterFunc func(ctx context.Context, ev WriterEvent) error

// Write implements Writer.
func (f WriterFunc) Write(ctx context.Context, ev WriterEvent) error { return f(ctx, ev) }

// HandoffData is the payload of a handoff event.
type HandoffData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// WriteStatus writes a status event. A nil writer is a no-op.
func WriteStatus(ctx context.Context, w Writer, status string) error {
	if w == nil {
		return nil
	}
	return w.Write(ctx, NewWriterEvent(WriterEventStatus, map[string]any{"status": status}))
}

// WriteHandoff records that from delegated the call to to. A nil writer is a
// no-op.
func WriteHandoff(ctx context.Context, w Writer, from, to string) error {
	if w == nil {
		return nil
	}
	return w.Write(ctx, NewWriterEvent(WriterEventHandoff, HandoffData{From: from, To: to}))
}

// Recorder is an in-memory Writer that keeps every event in issue order.
type Recorder struct {
	mu     sync.Mutex
	events []WriterEvent
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder { return &Recorder{} }

// Write implements Writer.
func (r *Recorder) Write(_ context.Context, ev WriterEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a snapshot of recorded events.
func (r *Recorder) Events() []WriterEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]WriterEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}
