package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/internal/util"
	"github.com/hupe1980/agentroute/logging"
)

// Options is what a typed tool function receives next to its input: the
// caller-defined context, typed as C, and the call's writer as a separate
// field.
type Options[C any] struct {
	Context    C
	Writer     core.Writer
	ToolCallID string
}

// Func is the implementation signature of a typed tool.
type Func[I, O, C any] func(ctx context.Context, input I, opts Options[C]) (O, error)

// FunctionToolOptions configures New.
type FunctionToolOptions struct {
	// InputSchema overrides the schema derived from I.
	InputSchema map[string]any
	// OutputSchema declares and enables validation of results.
	OutputSchema map[string]any
	Logger       logging.Logger
}

// FunctionTool is a generic adapter that exposes a typed Go function as a Tool.
//
// Error semantics:
//
//	*ToolError (returned directly)  -> forwarded unchanged
//	input validation failure        -> *ToolError{Code: "VALIDATION_ERROR"}
//	context type mismatch           -> *ToolError{Code: "CONTEXT_ERROR"}
//	other error                     -> *ToolError{Code: "EXECUTION_ERROR"}
//
// A FunctionTool has no mutable state after construction and is safe for
// concurrent use.
type FunctionTool[I, O, C any] struct {
	name        string
	description string
	input       *util.Schema
	output      *util.Schema
	fn          Func[I, O, C]
	logger      logging.Logger
}

// New constructs a FunctionTool. The input schema is derived from I unless
// overridden.
//
// Example:
//
//	type SumArgs struct {
//	  A float64 `json:"a" description:"First addend"`
//	  B float64 `json:"b" description:"Second addend"`
//	}
//
//	sum, err := tool.New("calculate_sum", "Calculate the sum of two numbers",
//	  func(ctx context.Context, in SumArgs, _ tool.Options[any]) (float64, error) {
//	    return in.A + in.B, nil
//	  },
//	)
func New[I, O, C any](
	name, description string,
	fn Func[I, O, C],
	optFns ...func(o *FunctionToolOptions),
) (*FunctionTool[I, O, C], error) {
	opts := FunctionToolOptions{Logger: logging.NoOpLogger{}}
	for _, f := range optFns {
		f(&opts)
	}

	if opts.InputSchema == nil {
		var zero I
		opts.InputSchema = util.CreateSchema(zero)
	}

	input, err := util.CompileSchema(name+"-input", opts.InputSchema)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}

	var output *util.Schema
	if opts.OutputSchema != nil {
		if output, err = util.CompileSchema(name+"-output", opts.OutputSchema); err != nil {
			return nil, fmt.Errorf("tool %s: %w", name, err)
		}
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &FunctionTool[I, O, C]{
		name:        name,
		description: description,
		input:       input,
		output:      output,
		fn:          fn,
		logger:      opts.Logger,
	}, nil
}

// MustNew is like New but panics when a schema does not compile.
func MustNew[I, O, C any](
	name, description string,
	fn Func[I, O, C],
	optFns ...func(o *FunctionToolOptions),
) *FunctionTool[I, O, C] {
	t, err := New(name, description, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the unique tool name.
func (t *FunctionTool[I, O, C]) Name() string { return t.name }

// Description returns the description exposed to models.
func (t *FunctionTool[I, O, C]) Description() string { return t.description }

// InputSchema returns the argument schema.
func (t *FunctionTool[I, O, C]) InputSchema() map[string]any { return t.input.Doc() }

// OutputSchema returns the declared result schema or nil.
func (t *FunctionTool[I, O, C]) OutputSchema() map[string]any {
	if t.output == nil {
		return nil
	}
	return t.output.Doc()
}

// Call validates args, decodes them into I, unwraps the envelope and runs the
// function.
func (t *FunctionTool[I, O, C]) Call(ctx context.Context, toolCallID string, args map[string]any, env *core.CallEnvelope) (any, error) {
	start := time.Now()

	t.logger.Debug("tool.call.start", "tool", t.name, "fc_id", toolCallID)

	if args == nil {
		args = map[string]any{}
	}

	if err := t.input.Validate(args); err != nil {
		t.logger.Warn("tool.call.validation_failed", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: fmt.Sprintf("parameter validation failed: %v", err),
			Code:    CodeValidation,
		}
	}

	var input I
	if err := decode(args, &input); err != nil {
		return nil, &ToolError{Tool: t.name, Message: err.Error(), Code: CodeValidation}
	}

	opts := Options[C]{Writer: env.Writer(), ToolCallID: toolCallID}
	if raw := env.UserContext(); raw != nil {
		typed, ok := raw.(C)
		if !ok {
			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("context of type %T is not assignable to the tool's context type", raw),
				Code:    CodeContext,
			}
		}
		opts.Context = typed
	}

	result, err := t.fn(ctx, input, opts)
	if err != nil {
		var toolErr *ToolError
		if errors.As(err, &toolErr) {
			t.logger.Error("tool.call.error", "tool", t.name, "error", toolErr.Message)
			return nil, toolErr
		}

		t.logger.Error("tool.call.error", "tool", t.name, "error", err.Error())

		return nil, &ToolError{
			Tool:    t.name,
			Message: err.Error(),
			Code:    CodeExecution,
		}
	}

	if t.output != nil {
		if err := t.output.Validate(result); err != nil {
			return nil, &ToolError{
				Tool:    t.name,
				Message: fmt.Sprintf("result validation failed: %v", err),
				Code:    CodeValidation,
			}
		}
	}

	t.logger.Info("tool.call.success", "tool", t.name, "duration_ms", time.Since(start).Milliseconds())

	return result, nil
}

func decode(args map[string]any, target any) error {
	b, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode arguments: %w", err)
	}
	if err := json.Unmarshal(b, target); err != nil {
		return fmt.Errorf("decode arguments: %w", err)
	}
	return nil
}
