// Package flow implements the model invocation loop used by agents: it runs
// model turns, executes requested tools with the call envelope, records the
// step trace and, when streaming, emits incremental events.
//
// A flow has no identity of its own. Agents assemble a Request (instructions,
// trimmed conversation, toolset, envelope) and hand it to a Runner.
package flow

import (
	"context"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/tool"
)

// Request describes one generation.
type Request struct {
	// Agent is the name reported on results, events and errors.
	Agent        string
	Instructions string
	// Messages is the conversation after windowing.
	Messages []core.Content
	Tools    []tool.Tool
	// Options is the opaque per-call value forwarded to the model.
	Options  any
	Envelope *core.CallEnvelope
	// StopWhen is evaluated after every step that executed tools; returning
	// true ends the loop without another model turn.
	StopWhen func(step core.Step) bool
}

// Invoker is implemented by Runner; agents depend on it so tests can swap the
// loop for a stub.
type Invoker interface {
	Generate(ctx context.Context, req Request) (*core.GenerationResult, error)
	Stream(ctx context.Context, req Request) (*core.Stream, error)
}

// RequestProcessor adjusts each model turn before it is sent.
type RequestProcessor interface {
	// Name returns the processor's identifier.
	Name() string
	// ProcessRequest modifies the model request for the current turn.
	ProcessRequest(ctx context.Context, turn *model.Request, req *Request) error
}

// StopOnToolResult returns a StopWhen predicate that ends the loop once the
// named tool produced a successful result.
func StopOnToolResult(toolName string) func(core.Step) bool {
	return func(step core.Step) bool {
		for _, r := range step.ToolResults {
			if r.Name == toolName && r.Error == "" {
				return true
			}
		}
		return false
	}
}
