package testutil

import (
	"encoding/json"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/model"
)

// TurnBuilder provides a fluent helper for constructing scripted model turns.
// Example:
//
//	turn := NewTurn().Text("checking").Call("select_agent", map[string]any{"agentId": "math"}).Build()
type TurnBuilder struct {
	text         []string
	calls        []core.FunctionCall
	finishReason string
	usage        *model.TokenUsage
	err          error
}

// Turn is one scripted model response. When Err is set the model fails the
// turn instead of responding.
type Turn struct {
	Response model.Response
	Err      error
}

// NewTurn creates a builder for an assistant turn.
func NewTurn() *TurnBuilder { return &TurnBuilder{} }

// Text appends a text part (chainable).
func (b *TurnBuilder) Text(t string) *TurnBuilder {
	b.text = append(b.text, t)
	return b
}

// Call appends a tool call. args is JSON encoded; a string is used verbatim
// (chainable).
func (b *TurnBuilder) Call(name string, args any) *TurnBuilder {
	return b.CallWithID("", name, args)
}

// CallWithID appends a tool call with an explicit id (chainable).
func (b *TurnBuilder) CallWithID(id, name string, args any) *TurnBuilder {
	var raw string
	switch a := args.(type) {
	case string:
		raw = a
	case nil:
		raw = "{}"
	default:
		encoded, err := json.Marshal(a)
		if err != nil {
			panic(err)
		}
		raw = string(encoded)
	}
	b.calls = append(b.calls, core.FunctionCall{ID: id, Name: name, Arguments: raw})
	return b
}

// Finish overrides the finish reason (chainable).
func (b *TurnBuilder) Finish(reason string) *TurnBuilder { b.finishReason = reason; return b }

// Usage attaches token usage (chainable).
func (b *TurnBuilder) Usage(prompt, completion int) *TurnBuilder {
	b.usage = &model.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return b
}

// Fail makes the turn fail with err (chainable).
func (b *TurnBuilder) Fail(err error) *TurnBuilder { b.err = err; return b }

// Build constructs the Turn.
func (b *TurnBuilder) Build() Turn {
	if b.err != nil {
		return Turn{Err: b.err}
	}

	parts := make([]core.Part, 0, len(b.text)+len(b.calls))
	for _, t := range b.text {
		parts = append(parts, core.TextPart{Text: t})
	}
	for _, fc := range b.calls {
		parts = append(parts, core.FunctionCallPart{FunctionCall: fc})
	}

	reason := b.finishReason
	if reason == "" {
		reason = "stop"
		if len(b.calls) > 0 {
			reason = "tool_calls"
		}
	}

	return Turn{Response: model.Response{
		Content:      core.Content{Role: core.RoleAssistant, Parts: parts},
		FinishReason: reason,
		Usage:        b.usage,
	}}
}
