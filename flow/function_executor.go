package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/tool"
)

// FunctionExecutor executes a batch of tool calls. Implementations must:
//   - Respect ctx cancellation
//   - Never panic (recover internally and report an error result)
//   - Return exactly one FunctionResponse per call, in call order
//   - Pass the envelope unchanged to every tool
type FunctionExecutor interface {
	Execute(ctx context.Context, agent string, tools map[string]tool.Tool, calls []core.FunctionCall, env *core.CallEnvelope) []core.FunctionResponse
}

// FunctionExecutorConfig configures the default executor.
type FunctionExecutorConfig struct {
	MaxParallel int // <= 1 runs calls sequentially
	Logger      logging.Logger
}

type parallelFunctionExecutor struct {
	cfg FunctionExecutorConfig
}

// NewParallelFunctionExecutor constructs a new executor with the given config.
func NewParallelFunctionExecutor(cfg FunctionExecutorConfig) FunctionExecutor {
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}
	return &parallelFunctionExecutor{cfg: cfg}
}

func (e *parallelFunctionExecutor) Execute(
	ctx context.Context,
	agent string,
	tools map[string]tool.Tool,
	calls []core.FunctionCall,
	env *core.CallEnvelope,
) []core.FunctionResponse {
	n := len(calls)
	results := make([]core.FunctionResponse, n)
	if n == 0 {
		return results
	}

	maxPar := e.cfg.MaxParallel
	if maxPar <= 1 || n == 1 {
		for i, fc := range calls {
			results[i] = e.executeSingle(ctx, agent, tools, fc, env)
		}
		return results
	}
	if maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, fc core.FunctionCall) {
			defer wg.Done()
			defer func() { <-sem }()
			results[idx] = e.executeSingle(ctx, agent, tools, fc, env)
		}(i, calls[i])
	}

	wg.Wait()

	e.cfg.Logger.Debug(
		"flow.functions.batch.complete",
		"agent", agent,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)

	return results
}

func (e *parallelFunctionExecutor) executeSingle(
	ctx context.Context,
	agent string,
	tools map[string]tool.Tool,
	fc core.FunctionCall,
	env *core.CallEnvelope,
) core.FunctionResponse {
	e.cfg.Logger.Debug("flow.function.start", "agent", agent, "function", fc.Name, "function_call_id", fc.ID)

	start := time.Now()
	var (
		result any
		err    error
	)
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					pe := panicError(r)
					err = pe
					e.cfg.Logger.Error("flow.function.panic", "agent", agent, "function", fc.Name, "recover", r, "stack", string(pe.stack))
				}
			}()
			result, err = executeTool(ctx, tools, fc, env)
		}()
	}

	e.cfg.Logger.Info(
		"flow.function.executed",
		"agent", agent,
		"function", fc.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	resp := core.FunctionResponse{ID: fc.ID, Name: fc.Name, Response: result}
	if err != nil {
		resp.Response = nil
		resp.Error = err.Error()
	}
	return resp
}

// panicError converts a recovered panic value to an error.
func panicError(r any) *panicErr { return &panicErr{val: r, stack: debug.Stack()} }

type panicErr struct {
	val   any
	stack []byte
}

func (p *panicErr) Error() string { return fmt.Sprintf("panic recovered: %v", p.val) }

// executeTool centralizes tool lookup, argument decoding and execution.
func executeTool(ctx context.Context, tools map[string]tool.Tool, fc core.FunctionCall, env *core.CallEnvelope) (any, error) {
	impl, ok := tools[fc.Name]
	if !ok {
		return nil, tool.NewToolError(fc.Name, fmt.Sprintf("tool %s not found", fc.Name), tool.CodeNotFound)
	}

	argMap := map[string]any{}
	if fc.Arguments != "" {
		if err := json.Unmarshal([]byte(fc.Arguments), &argMap); err != nil {
			return nil, tool.NewToolError(fc.Name, fmt.Sprintf("failed to unmarshal args: %v", err), tool.CodeValidation)
		}
	}

	return impl.Call(ctx, fc.ID, argMap, env)
}
