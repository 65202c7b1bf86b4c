package tool

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hupe1980/agentroute/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sumArgs struct {
	A float64 `json:"a" description:"First addend"`
	B float64 `json:"b" description:"Second addend"`
}

type tenantContext struct {
	Tenant string
}

func newSumTool(t *testing.T) *FunctionTool[sumArgs, float64, any] {
	t.Helper()
	sum, err := New("calculate_sum", "Calculate the sum of two numbers",
		func(_ context.Context, in sumArgs, _ Options[any]) (float64, error) {
			return in.A + in.B, nil
		},
	)
	require.NoError(t, err)
	return sum
}

func TestFunctionToolSuccess(t *testing.T) {
	sum := newSumTool(t)

	assert.Equal(t, "calculate_sum", sum.Name())
	assert.Nil(t, sum.OutputSchema())
	assert.Contains(t, sum.InputSchema()["properties"], "a")

	res, err := sum.Call(context.Background(), "call-1", map[string]any{"a": 2.0, "b": 3.0}, nil)
	require.NoError(t, err)
	assert.Equal(t, 5.0, res)
}

func TestFunctionToolValidationError(t *testing.T) {
	sum := newSumTool(t)

	_, err := sum.Call(context.Background(), "call-1", map[string]any{"a": "two"}, nil)
	require.Error(t, err)

	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
	assert.Equal(t, "calculate_sum", toolErr.Tool)
}

func TestFunctionToolExecutionError(t *testing.T) {
	failing := MustNew("fail", "always fails",
		func(_ context.Context, _ struct{}, _ Options[any]) (string, error) {
			return "", errors.New("backend unavailable")
		},
	)

	_, err := failing.Call(context.Background(), "c", nil, nil)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeExecution, toolErr.Code)
	assert.Equal(t, "backend unavailable", toolErr.Message)
}

func TestFunctionToolForwardsToolError(t *testing.T) {
	custom := NewToolError("quota", "limit reached", "QUOTA")
	tl := MustNew("quota", "quota check",
		func(_ context.Context, _ struct{}, _ Options[any]) (string, error) {
			return "", custom
		},
	)

	_, err := tl.Call(context.Background(), "c", nil, nil)
	assert.Same(t, custom, err)
}

func TestFunctionToolReceivesContextAndWriterSeparately(t *testing.T) {
	var (
		seenCtx    tenantContext
		seenWriter core.Writer
		seenID     string
	)

	tl := MustNew("inspect", "inspects options",
		func(_ context.Context, _ struct{}, opts Options[tenantContext]) (string, error) {
			seenCtx = opts.Context
			seenWriter = opts.Writer
			seenID = opts.ToolCallID
			return "ok", nil
		},
	)

	rec := core.NewRecorder()
	env := core.NewCallEnvelope(tenantContext{Tenant: "acme"}, rec)

	_, err := tl.Call(context.Background(), "call-7", map[string]any{}, env)
	require.NoError(t, err)

	assert.Equal(t, tenantContext{Tenant: "acme"}, seenCtx)
	assert.Same(t, rec, seenWriter)
	assert.Equal(t, "call-7", seenID)

	// The declared context type has no room for a writer.
	ctxType := reflect.TypeOf(seenCtx)
	for i := 0; i < ctxType.NumField(); i++ {
		assert.False(t, ctxType.Field(i).Type.Implements(reflect.TypeOf((*core.Writer)(nil)).Elem()))
	}
}

func TestFunctionToolContextMismatch(t *testing.T) {
	tl := MustNew("typed", "needs tenant context",
		func(_ context.Context, _ struct{}, _ Options[tenantContext]) (string, error) {
			return "ok", nil
		},
	)

	_, err := tl.Call(context.Background(), "c", nil, core.NewCallEnvelope("not a tenant", nil))
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeContext, toolErr.Code)
}

func TestFunctionToolNilEnvelopeYieldsZeroContext(t *testing.T) {
	var got Options[tenantContext]
	tl := MustNew("typed", "needs tenant context",
		func(_ context.Context, _ struct{}, opts Options[tenantContext]) (string, error) {
			got = opts
			return "ok", nil
		},
	)

	_, err := tl.Call(context.Background(), "c", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, tenantContext{}, got.Context)
	assert.Nil(t, got.Writer)
}

func TestFunctionToolOutputValidation(t *testing.T) {
	tl := MustNew("answer", "returns a number",
		func(_ context.Context, _ struct{}, _ Options[any]) (any, error) {
			return "not a number", nil
		},
		func(o *FunctionToolOptions) {
			o.OutputSchema = map[string]any{"type": "number"}
		},
	)

	assert.Equal(t, map[string]any{"type": "number"}, tl.OutputSchema())

	_, err := tl.Call(context.Background(), "c", nil, nil)
	var toolErr *ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, CodeValidation, toolErr.Code)
}

func TestFunctionToolCustomInputSchema(t *testing.T) {
	tl := MustNew("pick", "picks a color",
		func(_ context.Context, in map[string]any, _ Options[any]) (any, error) {
			return in["color"], nil
		},
		func(o *FunctionToolOptions) {
			o.InputSchema = map[string]any{
				"type": "object",
				"properties": map[string]any{
					"color": map[string]any{"type": "string", "enum": []any{"red", "blue"}},
				},
				"required": []any{"color"},
			}
		},
	)

	res, err := tl.Call(context.Background(), "c", map[string]any{"color": "red"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "red", res)

	_, err = tl.Call(context.Background(), "c", map[string]any{"color": "green"}, nil)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	infos := Describe([]Tool{newSumTool(t)})
	require.Len(t, infos, 1)
	assert.Equal(t, "calculate_sum", infos[0].Name)
	assert.Equal(t, "Calculate the sum of two numbers", infos[0].Description)
}

func TestToolErrorMessage(t *testing.T) {
	assert.Equal(t, "tool error [X] in t: boom", NewToolError("t", "boom", "X").Error())
	assert.Equal(t, "tool error in t: boom", (&ToolError{Tool: "t", Message: "boom"}).Error())
}
