package flow

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentroute/internal/util"
	"github.com/hupe1980/agentroute/model"
)

// InstructionsProcessor renders the instructions as a template against the
// caller context when that context is a map.
type InstructionsProcessor struct{}

// NewInstructionsProcessor creates a new instructions processor.
func NewInstructionsProcessor() *InstructionsProcessor { return &InstructionsProcessor{} }

// Name returns the processor's identifier.
func (p *InstructionsProcessor) Name() string { return "instructions" }

// ProcessRequest sets the turn's instructions.
func (p *InstructionsProcessor) ProcessRequest(_ context.Context, turn *model.Request, req *Request) error {
	state, ok := req.Envelope.UserContext().(map[string]any)
	if !ok {
		turn.Instructions = req.Instructions
		return nil
	}

	rendered, err := util.RenderTemplate(req.Instructions, state)
	if err != nil {
		return fmt.Errorf("failed to render instructions: %w", err)
	}
	turn.Instructions = rendered

	return nil
}

// ToolsProcessor declares the request's toolset to the model.
type ToolsProcessor struct{}

// NewToolsProcessor creates a new tools processor.
func NewToolsProcessor() *ToolsProcessor { return &ToolsProcessor{} }

// Name returns the processor's identifier.
func (p *ToolsProcessor) Name() string { return "tools" }

// ProcessRequest adds tool definitions to the turn.
func (p *ToolsProcessor) ProcessRequest(_ context.Context, turn *model.Request, req *Request) error {
	if len(req.Tools) == 0 {
		return nil
	}

	defs := make([]model.ToolDefinition, 0, len(req.Tools))
	for _, t := range req.Tools {
		defs = append(defs, model.ToolDefinition{
			Type: "function",
			Function: model.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.InputSchema(),
			},
		})
	}
	turn.Tools = defs

	return nil
}
