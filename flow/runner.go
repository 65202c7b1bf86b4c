package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/tool"
)

// DefaultMaxSteps bounds the number of model turns in one generation.
const DefaultMaxSteps = 10

// FinishReasonMaxSteps is reported when the step limit ends a generation.
const FinishReasonMaxSteps = "max-steps"

// Options configures a Runner.
type Options struct {
	MaxSteps     int
	StreamBuffer int
	Executor     FunctionExecutor
	// RequestProcessors run after the built-in instructions and tools processors.
	RequestProcessors []RequestProcessor
	Logger            logging.Logger
}

// Runner drives a model through turns of generation and tool execution.
// It is stateless between calls and safe for concurrent use.
type Runner struct {
	model      model.Model
	opts       Options
	processors []RequestProcessor
}

// NewRunner creates a Runner for the given model.
func NewRunner(m model.Model, optFns ...func(o *Options)) *Runner {
	opts := Options{
		MaxSteps:     DefaultMaxSteps,
		StreamBuffer: core.DefaultStreamBuffer,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Executor == nil {
		opts.Executor = NewParallelFunctionExecutor(FunctionExecutorConfig{Logger: opts.Logger})
	}

	processors := []RequestProcessor{NewInstructionsProcessor(), NewToolsProcessor()}
	processors = append(processors, opts.RequestProcessors...)

	return &Runner{model: m, opts: opts, processors: processors}
}

// Generate runs the loop to completion and returns the step trace.
func (r *Runner) Generate(ctx context.Context, req Request) (*core.GenerationResult, error) {
	return r.run(ctx, req, false, nil)
}

// Stream runs the loop in a goroutine and returns a handle immediately.
// Cancelling the handle aborts the model call and any running tool.
func (r *Runner) Stream(ctx context.Context, req Request) (*core.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := core.NewStream(r.opts.StreamBuffer, cancel)

	go func() {
		defer cancel()

		res, err := r.run(ctx, req, true, func(ev core.StreamEvent) error {
			ev.Agent = req.Agent
			return s.Push(ctx, ev)
		})
		if err != nil {
			_ = s.Push(ctx, core.StreamEvent{Type: core.StreamEventError, Agent: req.Agent, Error: err.Error()})
			s.EndWithError(err)
			return
		}
		s.End(res)
	}()

	return s, nil
}

// run is the shared loop. emit is nil for non-streaming generations.
func (r *Runner) run(ctx context.Context, req Request, stream bool, emit func(core.StreamEvent) error) (*core.GenerationResult, error) {
	start := time.Now()
	r.opts.Logger.Debug("flow.run.start", "agent", req.Agent, "messages", len(req.Messages), "tools", len(req.Tools), "stream", stream)

	registry := make(map[string]tool.Tool, len(req.Tools))
	for _, t := range req.Tools {
		registry[t.Name()] = t
	}

	contents := make([]core.Content, len(req.Messages))
	copy(contents, req.Messages)

	result := &core.GenerationResult{Agent: req.Agent}
	limiter := NewStepLimiter(r.opts.MaxSteps)

	for {
		if err := limiter.Increment(); err != nil {
			r.opts.Logger.Warn("flow.run.max_steps", "agent", req.Agent, "error", err.Error())
			result.FinishReason = FinishReasonMaxSteps
			break
		}

		turn := model.Request{Contents: contents, Stream: stream, Options: req.Options}
		for _, p := range r.processors {
			if err := p.ProcessRequest(ctx, &turn, &req); err != nil {
				return nil, r.fail(req, fmt.Errorf("request processor %s failed: %w", p.Name(), err))
			}
		}

		resp, err := r.turn(ctx, turn, emit)
		if err != nil {
			return nil, r.fail(req, err)
		}

		if resp.Usage != nil {
			result.Usage.PromptTokens += resp.Usage.PromptTokens
			result.Usage.CompletionTokens += resp.Usage.CompletionTokens
			result.Usage.TotalTokens += resp.Usage.TotalTokens
		}

		step := core.Step{Text: resp.Content.Text(), FinishReason: resp.FinishReason}
		calls := assignCallIDs(resp.Content)
		contents = append(contents, resp.Content)

		if len(calls) == 0 {
			result.Steps = append(result.Steps, step)
			result.Text = step.Text
			result.FinishReason = resp.FinishReason
			break
		}

		for _, fc := range calls {
			tc := core.ToolCall{ID: fc.ID, Name: fc.Name, Arguments: fc.Arguments}
			step.ToolCalls = append(step.ToolCalls, tc)
			if err := r.emit(emit, core.StreamEvent{Type: core.StreamEventToolCall, ToolCall: &tc}); err != nil {
				return nil, r.fail(req, err)
			}
		}

		responses := r.opts.Executor.Execute(ctx, req.Agent, registry, calls, req.Envelope)

		toolContent := core.Content{Role: core.RoleTool}
		for _, fr := range responses {
			tr := core.ToolResult{ID: fr.ID, Name: fr.Name, Result: fr.Response, Error: fr.Error}
			step.ToolResults = append(step.ToolResults, tr)
			toolContent.Parts = append(toolContent.Parts, core.FunctionResponsePart{FunctionResponse: fr})
			if err := r.emit(emit, core.StreamEvent{Type: core.StreamEventToolResult, ToolResult: &tr}); err != nil {
				return nil, r.fail(req, err)
			}
		}
		contents = append(contents, toolContent)
		result.Steps = append(result.Steps, step)

		if ctx.Err() != nil {
			return nil, r.fail(req, ctx.Err())
		}

		if req.StopWhen != nil && req.StopWhen(step) {
			result.Text = step.Text
			result.FinishReason = "tool-calls"
			break
		}
	}

	if err := r.emit(emit, core.StreamEvent{Type: core.StreamEventFinish, FinishReason: result.FinishReason}); err != nil {
		return nil, r.fail(req, err)
	}

	r.opts.Logger.Info(
		"flow.run.complete",
		"agent", req.Agent,
		"steps", len(result.Steps),
		"finish_reason", result.FinishReason,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return result, nil
}

// turn performs one model call and returns the terminal response. Partial
// text is forwarded through emit.
func (r *Runner) turn(ctx context.Context, req model.Request, emit func(core.StreamEvent) error) (*model.Response, error) {
	respCh, errCh := r.model.Generate(ctx, req)

	var (
		final    *model.Response
		streamed bool
	)

	for respCh != nil || errCh != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case resp, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}
			if !resp.Partial {
				final = &resp
				continue
			}
			if text := resp.Content.Text(); text != "" {
				streamed = true
				if err := r.emit(emit, core.StreamEvent{Type: core.StreamEventTextDelta, Text: text}); err != nil {
					return nil, err
				}
			}
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}
			if err != nil {
				return nil, err
			}
		}
	}

	if final == nil {
		return nil, errors.New("model returned no final response")
	}

	// Providers that do not stream still surface their text as one delta.
	if !streamed {
		if text := final.Content.Text(); text != "" {
			if err := r.emit(emit, core.StreamEvent{Type: core.StreamEventTextDelta, Text: text}); err != nil {
				return nil, err
			}
		}
	}

	return final, nil
}

func (r *Runner) emit(emit func(core.StreamEvent) error, ev core.StreamEvent) error {
	if emit == nil {
		return nil
	}
	return emit(ev)
}

func (r *Runner) fail(req Request, err error) error {
	r.opts.Logger.Error("flow.run.error", "agent", req.Agent, "error", err.Error())
	return &core.AgentExecutionError{Agent: req.Agent, Err: err}
}

// assignCallIDs fills in missing call ids in place and returns the calls.
func assignCallIDs(c core.Content) []core.FunctionCall {
	var calls []core.FunctionCall
	for i, p := range c.Parts {
		fc, ok := p.(core.FunctionCallPart)
		if !ok {
			continue
		}
		if fc.FunctionCall.ID == "" {
			fc.FunctionCall.ID = uuid.NewString()
			c.Parts[i] = fc
		}
		calls = append(calls, fc.FunctionCall)
	}
	return calls
}
