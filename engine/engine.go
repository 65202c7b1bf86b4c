package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/logging"
)

// ErrInvocationNotFound is returned by Cancel for unknown or finished
// invocations.
var ErrInvocationNotFound = errors.New("invocation not found")

// Config defines tuning parameters for the Engine.
type Config struct {
	// MaxConcurrentInvocations bounds how many invocations run at once.
	// Further invocations wait for a slot or for their context to end.
	// Zero disables the limit.
	MaxConcurrentInvocations int

	// StreamBuffer is the event buffer of streams handed out by Stream.
	StreamBuffer int
}

// DefaultConfig provides the default engine configuration.
var DefaultConfig = Config{
	MaxConcurrentInvocations: 10,
	StreamBuffer:             core.DefaultStreamBuffer,
}

// Options configures an Engine instance.
type Options struct {
	Config    Config
	Callbacks *CallbackManager
	Logger    logging.Logger
}

// Engine is the registry of top-level agents. It resolves agents by name,
// bounds concurrent invocations, assigns invocation IDs and runs the
// lifecycle callbacks around each call.
//
// Example:
//
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
//	if err := eng.Register(router); err != nil {
//	    return err
//	}
//	id, res, err := eng.Generate(ctx, "support", core.CallParameters{Prompt: "hi"})
type Engine struct {
	config    Config
	callbacks *CallbackManager
	logger    logging.Logger
	sem       chan struct{}

	mu     sync.RWMutex
	agents map[string]core.Agent

	invocationsMu     sync.Mutex
	activeInvocations map[string]context.CancelFunc
}

// New creates an engine with DefaultConfig and a no-op logger unless
// overridden.
func New(optFns ...func(o *Options)) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.Config.StreamBuffer <= 0 {
		opts.Config.StreamBuffer = core.DefaultStreamBuffer
	}

	e := &Engine{
		config:            opts.Config,
		callbacks:         opts.Callbacks,
		logger:            opts.Logger,
		agents:            make(map[string]core.Agent),
		activeInvocations: make(map[string]context.CancelFunc),
	}
	if opts.Config.MaxConcurrentInvocations > 0 {
		e.sem = make(chan struct{}, opts.Config.MaxConcurrentInvocations)
	}
	return e
}

// Register adds an agent under its identity name. An agent registered under
// the same name is replaced.
func (e *Engine) Register(a core.Agent) error {
	if a == nil {
		return errors.New("cannot register a nil agent")
	}
	name := a.Identity().Name
	if name == "" {
		return errors.New("cannot register an agent without a name")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.agents[name]; exists {
		e.logger.Warn("engine.agent.replaced", "agent", name)
	}
	e.agents[name] = a
	return nil
}

// RegisterCallback adds a lifecycle callback.
func (e *Engine) RegisterCallback(cb Callback) {
	e.callbacks.RegisterCallback(cb)
}

// Get returns the agent registered under name or an *core.AgentNotFoundError.
func (e *Engine) Get(name string) (core.Agent, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	a, ok := e.agents[name]
	if !ok {
		return nil, &core.AgentNotFoundError{Name: name}
	}
	return a, nil
}

// List describes every registered agent, sorted by name.
func (e *Engine) List() []core.AgentInfoNode {
	e.mu.RLock()
	agents := make([]core.Agent, 0, len(e.agents))
	for _, a := range e.agents {
		agents = append(agents, a)
	}
	e.mu.RUnlock()

	nodes := make([]core.AgentInfoNode, 0, len(agents))
	for _, a := range agents {
		nodes = append(nodes, a.Describe())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })
	return nodes
}

// Generate runs the named agent to completion. The returned invocation ID
// is the one taken from ctx (see WithInvocationID) or a fresh one.
func (e *Engine) Generate(
	ctx context.Context,
	agentName string,
	params core.CallParameters,
) (string, *core.GenerationResult, error) {
	inv, err := e.begin(ctx, agentName, &params)
	if err != nil {
		return inv.id, nil, err
	}
	defer inv.done()

	res, err := inv.agent.Generate(inv.ctx, params)
	if err != nil {
		return inv.id, nil, inv.fail(err)
	}
	if err := inv.succeed(res); err != nil {
		return inv.id, nil, err
	}
	return inv.id, res, nil
}

// Stream starts the named agent in streaming mode. The invocation slot is
// held until the returned stream ends; consumers that stop early must call
// Cancel on the stream.
func (e *Engine) Stream(
	ctx context.Context,
	agentName string,
	params core.CallParameters,
) (string, *core.Stream, error) {
	inv, err := e.begin(ctx, agentName, &params)
	if err != nil {
		return inv.id, nil, err
	}

	src, err := inv.agent.Stream(inv.ctx, params)
	if err != nil {
		err = inv.fail(err)
		inv.done()
		return inv.id, nil, err
	}

	out := core.NewStream(e.config.StreamBuffer, inv.cancel)
	go func() {
		defer inv.done()

		for ev := range src.Events() {
			if err := out.Push(inv.ctx, ev); err != nil {
				src.Cancel()
				_, _ = src.Result()
				out.EndWithError(inv.fail(err))
				return
			}
		}

		res, err := src.Result()
		if err != nil {
			out.EndWithError(inv.fail(err))
			return
		}
		if err := inv.succeed(res); err != nil {
			out.EndWithError(err)
			return
		}
		out.End(res)
	}()

	return inv.id, out, nil
}

// Cancel aborts a running invocation.
func (e *Engine) Cancel(invocationID string) error {
	e.invocationsMu.Lock()
	cancel, exists := e.activeInvocations[invocationID]
	e.invocationsMu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrInvocationNotFound, invocationID)
	}

	e.logger.Info("engine.invocation.cancel", "invocation_id", invocationID)
	cancel()
	return nil
}

// ActiveInvocations returns the number of running invocations.
func (e *Engine) ActiveInvocations() int {
	e.invocationsMu.Lock()
	defer e.invocationsMu.Unlock()
	return len(e.activeInvocations)
}

// invocation is the per-call bookkeeping shared by Generate and Stream.
type invocation struct {
	engine   *Engine
	id       string
	agent    core.Agent
	ctx      context.Context
	cancel   context.CancelFunc
	cb       *CallbackContext
	released bool
}

// begin resolves the agent, acquires a slot, registers the invocation and
// runs the before callbacks. On error nothing needs to be released.
func (e *Engine) begin(ctx context.Context, agentName string, params *core.CallParameters) (*invocation, error) {
	id := InvocationIDFromContext(ctx)
	if id == "" {
		id = uuid.NewString()
	}
	inv := &invocation{engine: e, id: id}

	a, err := e.Get(agentName)
	if err != nil {
		e.logger.Warn("engine.agent.not_found", "invocation_id", id, "agent", agentName)
		return inv, err
	}
	inv.agent = a

	if err := params.Validate(); err != nil {
		return inv, err
	}

	if e.sem != nil {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return inv, ctx.Err()
		}
	}

	inv.ctx, inv.cancel = context.WithCancel(ctx)

	e.invocationsMu.Lock()
	if _, exists := e.activeInvocations[id]; exists {
		e.invocationsMu.Unlock()
		inv.cancel()
		e.release()
		return inv, fmt.Errorf("invocation %s is already running", id)
	}
	e.activeInvocations[id] = inv.cancel
	e.invocationsMu.Unlock()

	inv.cb = &CallbackContext{
		InvocationID: id,
		AgentName:    agentName,
		Params:       params,
		Metadata:     map[string]any{},
	}

	e.logger.Info("engine.invocation.start", "invocation_id", id, "agent", agentName)

	if err := e.callbacks.ExecuteCallbacks(inv.ctx, CallbackBeforeAgent, inv.cb); err != nil {
		inv.done()
		return inv, fmt.Errorf("before_agent callback: %w", err)
	}
	return inv, nil
}

func (e *Engine) release() {
	if e.sem != nil {
		<-e.sem
	}
}

// done unregisters the invocation and frees its slot.
func (inv *invocation) done() {
	if inv.released {
		return
	}
	inv.released = true

	e := inv.engine
	e.invocationsMu.Lock()
	delete(e.activeInvocations, inv.id)
	e.invocationsMu.Unlock()

	inv.cancel()
	e.release()
}

func (inv *invocation) succeed(res *core.GenerationResult) error {
	inv.cb.Result = res
	if err := inv.engine.callbacks.ExecuteCallbacks(inv.ctx, CallbackAfterAgent, inv.cb); err != nil {
		return inv.fail(fmt.Errorf("after_agent callback: %w", err))
	}
	inv.engine.logger.Info("engine.invocation.complete",
		"invocation_id", inv.id,
		"agent", inv.cb.AgentName,
		"result_agent", res.Agent,
		"finish_reason", res.FinishReason,
	)
	return nil
}

// fail runs the error callbacks and returns err unchanged.
func (inv *invocation) fail(err error) error {
	inv.engine.logger.Error("engine.invocation.error",
		"invocation_id", inv.id,
		"agent", inv.cb.AgentName,
		"error", err.Error(),
	)
	inv.cb.Err = err
	if cbErr := inv.engine.callbacks.ExecuteCallbacks(context.WithoutCancel(inv.ctx), CallbackOnError, inv.cb); cbErr != nil {
		inv.engine.logger.Warn("engine.callback.error", "invocation_id", inv.id, "error", cbErr.Error())
	}
	return err
}

type invocationIDKey struct{}

// WithInvocationID returns a context that makes the engine use id for the
// next invocation started with it.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationIDKey{}, id)
}

// InvocationIDFromContext returns the ID set by WithInvocationID.
func InvocationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(invocationIDKey{}).(string)
	return id
}
