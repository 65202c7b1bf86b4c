package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tmaxmax/go-sse"

	"github.com/hupe1980/agentroute/core"
)

// Raw stream event types in addition to the core.StreamEvent types.
const (
	RawEventWriter = "writer"
	RawEventDone   = "done"
	RawEventFailed = "failed"
)

// UI stream frame types.
const (
	UIFrameStart       = "start"
	UIFrameTextDelta   = "text-delta"
	UIFrameToolInput   = "tool-input-available"
	UIFrameToolOutput  = "tool-output-available"
	UIFrameToolError   = "tool-output-error"
	UIFrameError       = "error"
	UIFrameFinish      = "finish"
	UIFrameDataPrefix  = "data-"
	UIStreamTerminator = "[DONE]"
)

// UIFrame is one JSON frame of the UI stream. Every frame of a response
// carries the same MessageID.
type UIFrame struct {
	Type         string `json:"type"`
	MessageID    string `json:"messageId"`
	Agent        string `json:"agent,omitempty"`
	Delta        string `json:"delta,omitempty"`
	ToolCallID   string `json:"toolCallId,omitempty"`
	ToolName     string `json:"toolName,omitempty"`
	Input        any    `json:"input,omitempty"`
	Output       any    `json:"output,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`
	DataID       string `json:"id,omitempty"`
	Data         any    `json:"data,omitempty"`
	FinishReason string `json:"finishReason,omitempty"`
}

// frameWriter serializes frames onto one SSE session. The agent's writer
// and the stream relay both send through it, so sends are mutex guarded.
// Frames sent before attach are queued and flushed on attach.
type frameWriter struct {
	id string // set as the SSE id of every frame when non-empty

	mu      sync.Mutex
	sess    *sse.Session
	pending []*sse.Message
	err     error
}

func (f *frameWriter) message(eventType string, payload any) (*sse.Message, error) {
	msg := &sse.Message{}
	if eventType != "" {
		msg.Type = sse.Type(eventType)
	}
	if f.id != "" {
		msg.ID = sse.ID(f.id)
	}

	switch p := payload.(type) {
	case string:
		msg.AppendData(p)
	default:
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s frame: %w", eventType, err)
		}
		msg.AppendData(string(b))
	}
	return msg, nil
}

func (f *frameWriter) send(eventType string, payload any) error {
	msg, err := f.message(eventType, payload)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}
	if f.sess == nil {
		f.pending = append(f.pending, msg)
		return nil
	}
	return f.flushLocked(msg)
}

func (f *frameWriter) attach(sess *sse.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sess = sess
	pending := f.pending
	f.pending = nil
	return f.flushLocked(pending...)
}

func (f *frameWriter) flushLocked(msgs ...*sse.Message) error {
	for _, msg := range msgs {
		if err := f.sess.Send(msg); err != nil {
			f.err = err
			return err
		}
	}
	if err := f.sess.Flush(); err != nil {
		f.err = err
		return err
	}
	return nil
}

// rawWriter forwards writer events as "writer" frames.
func rawWriter(f *frameWriter) core.Writer {
	return core.WriterFunc(func(_ context.Context, ev core.WriterEvent) error {
		return f.send(RawEventWriter, ev)
	})
}

// uiWriter forwards writer events as data-<type> frames.
func uiWriter(f *frameWriter) core.Writer {
	return core.WriterFunc(func(_ context.Context, ev core.WriterEvent) error {
		return f.send("", UIFrame{
			Type:      UIFrameDataPrefix + ev.Type,
			MessageID: f.id,
			DataID:    ev.ID,
			Data:      ev.Data,
		})
	})
}

// uiFrame converts a stream event. Tool call arguments are decoded when
// they are valid JSON.
func uiFrame(messageID string, ev core.StreamEvent) UIFrame {
	frame := UIFrame{MessageID: messageID, Agent: ev.Agent}

	switch ev.Type {
	case core.StreamEventTextDelta:
		frame.Type = UIFrameTextDelta
		frame.Delta = ev.Text
	case core.StreamEventToolCall:
		frame.Type = UIFrameToolInput
		if ev.ToolCall != nil {
			frame.ToolCallID = ev.ToolCall.ID
			frame.ToolName = ev.ToolCall.Name
			var input any
			if err := json.Unmarshal([]byte(ev.ToolCall.Arguments), &input); err == nil {
				frame.Input = input
			} else {
				frame.Input = ev.ToolCall.Arguments
			}
		}
	case core.StreamEventToolResult:
		frame.Type = UIFrameToolOutput
		if ev.ToolResult != nil {
			frame.ToolCallID = ev.ToolResult.ID
			frame.ToolName = ev.ToolResult.Name
			if ev.ToolResult.Error != "" {
				frame.Type = UIFrameToolError
				frame.ErrorText = ev.ToolResult.Error
			} else {
				frame.Output = ev.ToolResult.Result
			}
		}
	case core.StreamEventError:
		frame.Type = UIFrameError
		frame.ErrorText = ev.Error
	case core.StreamEventFinish:
		frame.Type = UIFrameFinish
		frame.FinishReason = ev.FinishReason
	default:
		frame.Type = string(ev.Type)
	}

	return frame
}
