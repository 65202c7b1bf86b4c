package flow

import (
	"bytes"
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/tool"
)

// echoModel answers every turn with the last user text.
type echoModel struct{}

func (echoModel) Generate(_ context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 1)
	errCh := make(chan error)
	out <- model.Response{
		Content:      core.NewTextContent(core.RoleAssistant, req.Contents[len(req.Contents)-1].Text()),
		FinishReason: "stop",
	}
	close(out)
	close(errCh)
	return out, errCh
}

func (echoModel) Info() model.Info { return model.Info{Name: "echo", Provider: "test"} }

func TestFunctionExecutor_PreservesOrder(t *testing.T) {
	slow := &fakeTool{name: "slow", fn: func(context.Context, map[string]any, *core.CallEnvelope) (any, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow", nil
	}}
	fast := &fakeTool{name: "fast", fn: func(context.Context, map[string]any, *core.CallEnvelope) (any, error) {
		return "fast", nil
	}}
	tools := map[string]tool.Tool{"slow": slow, "fast": fast}

	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 4})
	out := exec.Execute(context.Background(), "a", tools, []core.FunctionCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
	}, nil)

	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].ID)
	assert.Equal(t, "slow", out[0].Response)
	assert.Equal(t, "2", out[1].ID)
	assert.Equal(t, "fast", out[1].Response)
}

func TestFunctionExecutor_BoundedParallelism(t *testing.T) {
	var running, peak int32
	busy := &fakeTool{name: "busy", fn: func(context.Context, map[string]any, *core.CallEnvelope) (any, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil, nil
	}}

	calls := make([]core.FunctionCall, 6)
	for i := range calls {
		calls[i] = core.FunctionCall{ID: string(rune('a' + i)), Name: "busy"}
	}

	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{MaxParallel: 2})
	out := exec.Execute(context.Background(), "a", map[string]tool.Tool{"busy": busy}, calls, nil)

	assert.Len(t, out, 6)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestFunctionExecutor_RecoversPanics(t *testing.T) {
	bad := &fakeTool{name: "bad", fn: func(context.Context, map[string]any, *core.CallEnvelope) (any, error) {
		panic("kaboom")
	}}

	var buf bytes.Buffer
	logger := logging.NewSlogAdapter(slog.New(slog.NewJSONHandler(&buf, nil)))

	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{Logger: logger})
	out := exec.Execute(context.Background(), "a", map[string]tool.Tool{"bad": bad}, []core.FunctionCall{{ID: "1", Name: "bad"}}, nil)

	require.Len(t, out, 1)
	assert.Nil(t, out[0].Response)
	assert.Contains(t, out[0].Error, "panic recovered: kaboom")

	logged := buf.String()
	assert.Contains(t, logged, "flow.function.panic")
	assert.Contains(t, logged, `"stack":"goroutine`)
}

func TestFunctionExecutor_InvalidArguments(t *testing.T) {
	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	out := exec.Execute(context.Background(), "a", map[string]tool.Tool{"echo": echoTool("echo")},
		[]core.FunctionCall{{ID: "1", Name: "echo", Arguments: "{not json"}}, nil)

	require.Len(t, out, 1)
	assert.Contains(t, out[0].Error, tool.CodeValidation)
}

func TestFunctionExecutor_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	inspect := &fakeTool{name: "inspect", fn: func(context.Context, map[string]any, *core.CallEnvelope) (any, error) {
		called = true
		return nil, nil
	}}

	exec := NewParallelFunctionExecutor(FunctionExecutorConfig{})
	out := exec.Execute(ctx, "a", map[string]tool.Tool{"inspect": inspect}, []core.FunctionCall{{ID: "1", Name: "inspect"}}, nil)

	assert.False(t, called)
	assert.Equal(t, context.Canceled.Error(), out[0].Error)
}

func TestStepLimiter(t *testing.T) {
	l := NewStepLimiter(2)
	require.NoError(t, l.Increment())
	assert.Equal(t, 1, l.Remaining())
	require.NoError(t, l.Increment())
	assert.EqualError(t, l.Increment(), "exceeded max steps: 2")
	assert.Equal(t, 3, l.Count())

	unlimited := NewStepLimiter(0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Increment())
	}
	assert.Equal(t, -1, unlimited.Remaining())
}
