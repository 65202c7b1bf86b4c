package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/model"
)

// ErrScriptExhausted is returned when a ScriptedModel runs out of turns.
var ErrScriptExhausted = errors.New("scripted model: no turns left")

// ScriptedModel replays a fixed sequence of turns and records every request
// it receives. When streaming, text parts are emitted as partial responses
// word by word before the final response.
type ScriptedModel struct {
	name string

	mu       sync.Mutex
	turns    []Turn
	requests []model.Request

	// Block, when non-nil, is waited on before each turn is answered.
	Block chan struct{}
}

// NewScriptedModel creates a model that answers with turns in order.
func NewScriptedModel(name string, turns ...Turn) *ScriptedModel {
	return &ScriptedModel{name: name, turns: turns}
}

// Generate implements model.Model.
func (m *ScriptedModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	respCh := make(chan model.Response, 64)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, copyRequest(req))
	var (
		turn Turn
		ok   bool
	)
	if len(m.turns) > 0 {
		turn, ok = m.turns[0], true
		m.turns = m.turns[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if m.Block != nil {
			select {
			case <-m.Block:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if !ok {
			errCh <- ErrScriptExhausted
			return
		}
		if turn.Err != nil {
			errCh <- turn.Err
			return
		}

		if req.Stream {
			for _, chunk := range chunks(turn.Response.Content.Text()) {
				select {
				case respCh <- model.Response{Partial: true, Content: core.NewTextContent(core.RoleAssistant, chunk)}:
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				}
			}
		}

		select {
		case respCh <- turn.Response:
		case <-ctx.Done():
			errCh <- ctx.Err()
		}
	}()

	return respCh, errCh
}

// Info implements model.Model.
func (m *ScriptedModel) Info() model.Info {
	return model.Info{Name: m.name, Provider: "scripted", SupportsTools: true}
}

// Requests returns a copy of every request received so far.
func (m *ScriptedModel) Requests() []model.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns how many times Generate was invoked.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Remaining returns the number of unused turns.
func (m *ScriptedModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

func copyRequest(req model.Request) model.Request {
	out := req
	out.Contents = append([]core.Content(nil), req.Contents...)
	out.Tools = append([]model.ToolDefinition(nil), req.Tools...)
	return out
}

// chunks splits text after every space, keeping the separators.
func chunks(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	start := 0
	for i, r := range text {
		if r == ' ' {
			out = append(out, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}
