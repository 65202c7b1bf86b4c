// Package tool implements the function / tool calling subsystem that lets agents
// invoke structured capabilities (APIs, computations, side-effects) with schema
// validated arguments, consistent error handling and metadata for LLM guidance.
package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentroute/core"
)

// Tool is a callable unit of work exposed to the model.
//
// The envelope passed to Call bundles the caller-defined context with the
// call's writer. Implementations unwrap it and hand the two values to user
// code separately, so the writer never shows up inside the caller context.
type Tool interface {
	// Name returns the unique identifier for this tool (snake_case recommended).
	Name() string

	// Description is provided to the LLM to help it decide when to call the tool.
	Description() string

	// InputSchema returns the JSON schema of the accepted arguments.
	InputSchema() map[string]any

	// OutputSchema returns the JSON schema of the result, or nil if undeclared.
	OutputSchema() map[string]any

	// Call executes the tool. toolCallID correlates the model's request with
	// the result.
	Call(ctx context.Context, toolCallID string, args map[string]any, env *core.CallEnvelope) (any, error)
}

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
	CodeContext    = "CONTEXT_ERROR"
	CodeNotFound   = "NOT_FOUND"
)

// ToolError represents errors that occur during tool execution. The
// invocation loop reports them back to the model instead of failing the call.
type ToolError struct {
	Tool    string `json:"tool"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}
	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Describe converts tools into introspection entries.
func Describe(tools []Tool) []core.ToolInfo {
	infos := make([]core.ToolInfo, 0, len(tools))
	for _, t := range tools {
		infos = append(infos, core.ToolInfo{
			Name:        t.Name(),
			Description: t.Description(),
			InputSchema: t.InputSchema(),
		})
	}
	return infos
}
