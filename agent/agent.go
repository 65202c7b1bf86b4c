package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/flow"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/tool"
)

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	Instruction       Instruction
	CapabilitySummary string
	// MaxMessagesInContext keeps only the last N messages of a history.
	// Values <= 0 disable windowing; a per-call value takes precedence.
	MaxMessagesInContext int
	Tools                []tool.Tool
	// MaxSteps bounds model turns per call (flow.DefaultMaxSteps when <= 0).
	MaxSteps int
	// ToolParallelism runs up to N tool calls of one turn concurrently.
	ToolParallelism int
	// Invoker replaces the default flow.Runner built around the model.
	Invoker flow.Invoker
	Logger  logging.Logger
}

// Agent is a leaf agent: one model, an instruction and a live toolset.
type Agent struct {
	identity    core.Identity
	instruction Instruction
	maxMessages int
	invoker     flow.Invoker
	logger      logging.Logger

	mu    sync.RWMutex
	tools map[string]tool.Tool
}

// New creates a leaf agent bound to m.
func New(name string, m model.Model, optFns ...func(o *Options)) *Agent {
	opts := Options{
		Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a helpful AI assistant.", name)),
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return newAgent(name, m, opts)
}

func newAgent(name string, m model.Model, opts Options) *Agent {
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	invoker := opts.Invoker
	if invoker == nil {
		invoker = flow.NewRunner(m, func(o *flow.Options) {
			if opts.MaxSteps > 0 {
				o.MaxSteps = opts.MaxSteps
			}
			o.Logger = opts.Logger
			o.Executor = flow.NewParallelFunctionExecutor(flow.FunctionExecutorConfig{
				MaxParallel: opts.ToolParallelism,
				Logger:      opts.Logger,
			})
		})
	}

	var modelID string
	if m != nil {
		modelID = m.Info().Name
	}

	tools := make(map[string]tool.Tool, len(opts.Tools))
	for _, t := range opts.Tools {
		tools[t.Name()] = t
	}

	return &Agent{
		identity: core.Identity{
			Name:              name,
			CapabilitySummary: opts.CapabilitySummary,
			ModelID:           modelID,
		},
		instruction: opts.Instruction,
		maxMessages: opts.MaxMessagesInContext,
		invoker:     invoker,
		logger:      opts.Logger,
		tools:       tools,
	}
}

// Identity returns the agent's immutable identity.
func (a *Agent) Identity() core.Identity { return a.identity }

// RegisterTool adds or replaces a tool. Calls already in flight keep the
// toolset they started with.
func (a *Agent) RegisterTool(t tool.Tool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tools[t.Name()] = t
}

// UnregisterTool removes a tool and reports whether it was registered.
func (a *Agent) UnregisterTool(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.tools[name]; !exists {
		return false
	}
	delete(a.tools, name)
	return true
}

// ListTools returns the registered tool names in lexical order.
func (a *Agent) ListTools() []string {
	tools := a.toolset()
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name()
	}
	return names
}

func (a *Agent) toolset() []tool.Tool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]tool.Tool, 0, len(a.tools))
	for _, t := range a.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Describe returns a fresh introspection node listing the current tools.
func (a *Agent) Describe() core.AgentInfoNode {
	tools := a.toolset()
	var names []string
	for _, t := range tools {
		names = append(names, t.Name())
	}
	return core.AgentInfoNode{
		Type:              core.AgentTypeAgent,
		Name:              a.identity.Name,
		CapabilitySummary: a.identity.CapabilitySummary,
		ModelID:           a.identity.ModelID,
		Tools:             names,
		ToolSchemas:       tool.Describe(tools),
	}
}

// Generate runs the agent to completion.
func (a *Agent) Generate(ctx context.Context, params core.CallParameters) (res *core.GenerationResult, err error) {
	ctx, span := startSpan(ctx, "agent.generate", a.identity, core.AgentTypeAgent)
	defer func() { endSpan(span, err) }()

	return a.generate(ctx, params, runExtras{})
}

// Stream starts the agent and returns a handle to its events.
func (a *Agent) Stream(ctx context.Context, params core.CallParameters) (s *core.Stream, err error) {
	ctx, span := startSpan(ctx, "agent.stream", a.identity, core.AgentTypeAgent)
	defer func() { endSpan(span, err) }()

	return a.stream(ctx, params, runExtras{})
}

// runExtras carries what a router adds on top of a plain leaf run.
type runExtras struct {
	instructions string
	tools        []tool.Tool
	stopWhen     func(core.Step) bool
}

func (a *Agent) generate(ctx context.Context, params core.CallParameters, extras runExtras) (*core.GenerationResult, error) {
	req, err := a.prepare(ctx, params, extras)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("agent.generate.start", "agent", a.identity.Name, "messages", len(req.Messages), "tools", len(req.Tools))

	res, err := a.invoker.Generate(ctx, req)
	if err != nil {
		a.logger.Error("agent.generate.error", "agent", a.identity.Name, "error", err.Error())
		return nil, executionError(a.identity.Name, err)
	}

	a.logger.Debug("agent.generate.complete", "agent", a.identity.Name, "steps", len(res.Steps))

	return res, nil
}

func (a *Agent) stream(ctx context.Context, params core.CallParameters, extras runExtras) (*core.Stream, error) {
	req, err := a.prepare(ctx, params, extras)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("agent.stream.start", "agent", a.identity.Name, "messages", len(req.Messages), "tools", len(req.Tools))

	s, err := a.invoker.Stream(ctx, req)
	if err != nil {
		a.logger.Error("agent.stream.error", "agent", a.identity.Name, "error", err.Error())
		return nil, executionError(a.identity.Name, err)
	}

	return s, nil
}

// prepare validates the call and assembles the flow request. Nothing reaches
// the model before validation succeeds.
func (a *Agent) prepare(ctx context.Context, params core.CallParameters, extras runExtras) (flow.Request, error) {
	if err := params.Validate(); err != nil {
		a.logger.Warn("agent.call.invalid", "agent", a.identity.Name, "error", err.Error())
		return flow.Request{}, err
	}

	instructions, err := a.instruction.Resolve(ctx, params)
	if err != nil {
		return flow.Request{}, executionError(a.identity.Name, fmt.Errorf("resolve instructions: %w", err))
	}
	if extras.instructions != "" {
		instructions = strings.TrimSpace(instructions + "\n\n" + extras.instructions)
	}

	return flow.Request{
		Agent:        a.identity.Name,
		Instructions: instructions,
		Messages:     params.Conversation(params.EffectiveWindow(a.maxMessages)),
		Tools:        append(a.toolset(), extras.tools...),
		Options:      params.Options,
		Envelope:     core.EnvelopeFor(params),
		StopWhen:     extras.stopWhen,
	}, nil
}

// executionError wraps err unless it already names a failing agent.
func executionError(agent string, err error) error {
	var execErr *core.AgentExecutionError
	if errors.As(err, &execErr) {
		return err
	}
	return &core.AgentExecutionError{Agent: agent, Err: err}
}
