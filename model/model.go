package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/agentroute/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object.
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Request captures one model turn as assembled by the invocation loop.
type Request struct {
	Instructions string           `json:"instructions"`
	Contents     []core.Content   `json:"contents"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
	// Options is the opaque per-call value from core.CallParameters.
	// Adapters read provider settings from it through SettingsFrom.
	Options any `json:"-"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a model. Exactly one
// non-partial response terminates each turn.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Content      core.Content `json:"content"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the single-turn generation interface driven by the invocation loop.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Send delivers r on out unless ctx ends first and reports whether r was
// delivered. Producers stop when it returns false.
func Send(ctx context.Context, out chan<- Response, r Response) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// Fail reports err on errCh unless ctx ends first.
func Fail(ctx context.Context, errCh chan<- error, err error) {
	select {
	case errCh <- err:
	case <-ctx.Done():
	}
}

// MockModel is a lightweight in-memory Model useful for tests, examples and
// the "mock" provider in configuration files.
type MockModel struct {
	info      Info
	mu        sync.RWMutex
	responses map[string]string
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[prompt] = response
}

// Generate implements Model; emits optional streaming char chunks then final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)
		if len(req.Contents) == 0 {
			Fail(ctx, errCh, fmt.Errorf("no contents provided"))
			return
		}
		inputText := req.Contents[len(req.Contents)-1].Text()

		m.mu.RLock()
		full := m.responses[inputText]
		m.mu.RUnlock()
		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", inputText)
		}
		if req.Stream {
			for _, r := range full {
				if !Send(ctx, respCh, Response{
					Partial: true,
					Content: core.NewTextContent(core.RoleAssistant, string(r)),
				}) {
					errCh <- ctx.Err()
					return
				}
			}
		}
		if !Send(ctx, respCh, Response{
			Content:      core.NewTextContent(core.RoleAssistant, full),
			FinishReason: "stop",
		}) {
			errCh <- ctx.Err()
		}
	}()
	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
