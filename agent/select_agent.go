package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/tool"
)

// SelectAgentToolName is the name of the routing tool synthesized by routers.
const SelectAgentToolName = "select_agent"

// SelectAgentInput is what the router's model submits to select_agent.
type SelectAgentInput struct {
	AgentID    string  `json:"agentId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// Selection is the successful result of select_agent.
type Selection struct {
	AgentID    string  `json:"agentId"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// newSelectAgentTool builds the routing tool over a closed set of names.
// Choices below threshold are rejected so the model falls back to answering
// directly.
func newSelectAgentTool(names []string, threshold float64, logger logging.Logger) (tool.Tool, error) {
	enum := make([]any, len(names))
	for i, n := range names {
		enum[i] = n
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"agentId": map[string]any{
				"type":        "string",
				"enum":        enum,
				"description": "Name of the top-level agent that should handle the request",
			},
			"confidence": map[string]any{
				"type":        "number",
				"minimum":     0,
				"maximum":     1,
				"description": "Confidence that the chosen agent is the right one, between 0 and 1",
			},
			"reason": map[string]any{
				"type":        "string",
				"description": "One sentence explaining the choice",
			},
		},
		"required":             []any{"agentId", "confidence"},
		"additionalProperties": false,
	}

	fn := func(_ context.Context, in SelectAgentInput, _ tool.Options[any]) (Selection, error) {
		if in.Confidence < threshold {
			return Selection{}, &tool.ToolError{
				Tool:    SelectAgentToolName,
				Code:    tool.CodeValidation,
				Message: fmt.Sprintf("confidence %.2f is below the threshold %.2f; answer the user directly instead", in.Confidence, threshold),
			}
		}
		return Selection(in), nil
	}

	return tool.New[SelectAgentInput, Selection, any](
		SelectAgentToolName,
		"Hand the user's request to the agent best suited to answer it.",
		fn,
		func(o *tool.FunctionToolOptions) {
			o.InputSchema = schema
			o.Logger = logger
		},
	)
}

// selectionFrom reads a select_agent result regardless of whether it kept
// its Go type or went through JSON.
func selectionFrom(v any) (Selection, bool) {
	switch s := v.(type) {
	case Selection:
		return s, s.AgentID != ""
	case *Selection:
		if s == nil {
			return Selection{}, false
		}
		return *s, s.AgentID != ""
	case nil:
		return Selection{}, false
	}

	b, err := json.Marshal(v)
	if err != nil {
		return Selection{}, false
	}
	var sel Selection
	if err := json.Unmarshal(b, &sel); err != nil {
		return Selection{}, false
	}
	return sel, sel.AgentID != ""
}
