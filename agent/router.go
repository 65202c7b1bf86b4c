package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/flow"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/tool"
)

// DefaultConfidenceThreshold is the minimum confidence a selection needs.
const DefaultConfidenceThreshold = 0.7

// Construction errors returned by NewRouter and AddSubAgent.
var (
	ErrInvalidThreshold = errors.New("confidence threshold must be within [0, 1]")
	ErrDuplicateAgent   = errors.New("duplicate sub-agent name")
	ErrAgentCycle       = errors.New("sub-agent graph contains a cycle")
	ErrNilAgent         = errors.New("sub-agent is nil")
)

// RouterOptions configures a Router. The embedded Options configure the
// router's own leaf run.
type RouterOptions struct {
	Options
	ConfidenceThreshold float64
}

// Router is a composite agent that picks one sub-agent per request.
//
// Every call runs the router's model with the select_agent tool. A
// successful selection of a known sub-agent re-dispatches the caller's
// original parameters to it; otherwise the router's own answer is returned.
type Router struct {
	leaf      *Agent
	threshold float64

	mu      sync.RWMutex
	routing *routingSet
}

// routingSet is an immutable snapshot of the sub-agents and the select tool
// built over their names. AddSubAgent swaps it as a whole.
type routingSet struct {
	agents []core.Agent
	byName map[string]core.Agent
	tool   tool.Tool
}

// NewRouter creates a router over subAgents. Names must be unique.
func NewRouter(name string, m model.Model, subAgents []core.Agent, optFns ...func(o *RouterOptions)) (*Router, error) {
	opts := RouterOptions{
		Options: Options{
			Instruction: NewInstructionFromText(fmt.Sprintf("You are %s, a router that hands each request to the agent best suited to answer it.", name)),
		},
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.ConfidenceThreshold < 0 || opts.ConfidenceThreshold > 1 {
		return nil, fmt.Errorf("router %q: %w: %v", name, ErrInvalidThreshold, opts.ConfidenceThreshold)
	}

	r := &Router{
		leaf:      newAgent(name, m, opts.Options),
		threshold: opts.ConfidenceThreshold,
	}

	set, err := r.buildRoutingSet(subAgents)
	if err != nil {
		return nil, err
	}
	r.routing = set

	return r, nil
}

// MustNewRouter is like NewRouter but panics on construction errors.
func MustNewRouter(name string, m model.Model, subAgents []core.Agent, optFns ...func(o *RouterOptions)) *Router {
	r, err := NewRouter(name, m, subAgents, optFns...)
	if err != nil {
		panic(err)
	}
	return r
}

// Identity returns the router's identity.
func (r *Router) Identity() core.Identity { return r.leaf.Identity() }

// ConfidenceThreshold returns the minimum confidence for delegation.
func (r *Router) ConfidenceThreshold() float64 { return r.threshold }

// RegisterTool adds a tool to the router's own run.
func (r *Router) RegisterTool(t tool.Tool) { r.leaf.RegisterTool(t) }

// UnregisterTool removes a tool from the router's own run.
func (r *Router) UnregisterTool(name string) bool { return r.leaf.UnregisterTool(name) }

// ListTools returns the router's own tool names. select_agent is not listed.
func (r *Router) ListTools() []string { return r.leaf.ListTools() }

// SubAgents returns the current sub-agents in registration order.
func (r *Router) SubAgents() []core.Agent {
	set := r.snapshot()
	out := make([]core.Agent, len(set.agents))
	copy(out, set.agents)
	return out
}

// AddSubAgent appends a sub-agent. It fails on duplicate names and when the
// new agent can reach this router.
func (r *Router) AddSubAgent(a core.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	agents := make([]core.Agent, 0, len(r.routing.agents)+1)
	agents = append(agents, r.routing.agents...)
	agents = append(agents, a)

	set, err := r.buildRoutingSet(agents)
	if err != nil {
		return err
	}
	r.routing = set

	r.leaf.logger.Info("router.sub_agent.added", "router", r.leaf.identity.Name, "agent", a.Identity().Name)

	return nil
}

func (r *Router) snapshot() *routingSet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.routing
}

func (r *Router) buildRoutingSet(agents []core.Agent) (*routingSet, error) {
	name := r.leaf.identity.Name
	set := &routingSet{byName: make(map[string]core.Agent, len(agents))}
	names := make([]string, 0, len(agents))

	for _, a := range agents {
		if a == nil {
			return nil, fmt.Errorf("router %q: %w", name, ErrNilAgent)
		}
		id := a.Identity().Name
		if _, exists := set.byName[id]; exists {
			return nil, fmt.Errorf("router %q: %w: %q", name, ErrDuplicateAgent, id)
		}
		if reaches(a, r) {
			return nil, fmt.Errorf("router %q: %w through %q", name, ErrAgentCycle, id)
		}
		set.byName[id] = a
		set.agents = append(set.agents, a)
		names = append(names, id)
	}

	if len(names) > 0 {
		t, err := newSelectAgentTool(names, r.threshold, r.leaf.logger)
		if err != nil {
			return nil, fmt.Errorf("router %q: %w", name, err)
		}
		set.tool = t
	}

	return set, nil
}

// composite is implemented by agents that own sub-agents.
type composite interface {
	SubAgents() []core.Agent
}

// reaches reports whether target is from or one of its descendants. The
// target itself is never asked for its sub-agents.
func reaches(from core.Agent, target *Router) bool {
	if r, ok := from.(*Router); ok && r == target {
		return true
	}
	c, ok := from.(composite)
	if !ok {
		return false
	}
	for _, child := range c.SubAgents() {
		if reaches(child, target) {
			return true
		}
	}
	return false
}

// RoutingInstructions returns the generated routing section appended to the
// router's instruction on every call.
func (r *Router) RoutingInstructions() (string, error) {
	return renderRoutingInstructions(r.snapshot().agents, r.threshold)
}

// Describe returns a fresh node covering the router's tools and sub-agents.
func (r *Router) Describe() core.AgentInfoNode {
	node := r.leaf.Describe()
	node.Type = core.AgentTypeRouter
	for _, sa := range r.snapshot().agents {
		node.SubAgents = append(node.SubAgents, sa.Describe())
	}
	return node
}

func (r *Router) extras(set *routingSet) (runExtras, error) {
	if set.tool == nil {
		return runExtras{}, nil
	}
	instructions, err := renderRoutingInstructions(set.agents, r.threshold)
	if err != nil {
		return runExtras{}, &core.AgentExecutionError{Agent: r.leaf.identity.Name, Err: fmt.Errorf("render routing instructions: %w", err)}
	}
	return runExtras{
		instructions: instructions,
		tools:        []tool.Tool{set.tool},
		stopWhen:     flow.StopOnToolResult(SelectAgentToolName),
	}, nil
}

// resolve maps a successful select_agent result to a sub-agent.
func (r *Router) resolve(set *routingSet, tr core.ToolResult) (core.Agent, bool) {
	if tr.Name != SelectAgentToolName || tr.Error != "" {
		return nil, false
	}
	sel, ok := selectionFrom(tr.Result)
	if !ok {
		r.leaf.logger.Warn("router.selection.malformed", "router", r.leaf.identity.Name, "tool_call_id", tr.ID)
		return nil, false
	}
	target, ok := set.byName[sel.AgentID]
	if !ok {
		r.leaf.logger.Warn("router.unknown_agent", "router", r.leaf.identity.Name, "agent_id", sel.AgentID)
		return nil, false
	}
	return target, true
}

// Generate routes the call. On delegation the sub-agent's result replaces
// the router's own.
func (r *Router) Generate(ctx context.Context, params core.CallParameters) (res *core.GenerationResult, err error) {
	ctx, span := startSpan(ctx, "router.route", r.Identity(), core.AgentTypeRouter)
	defer func() { endSpan(span, err) }()

	if err := params.Validate(); err != nil {
		return nil, err
	}

	set := r.snapshot()
	extras, err := r.extras(set)
	if err != nil {
		return nil, err
	}

	own, err := r.leaf.generate(ctx, params, extras)
	if err != nil {
		return nil, err
	}

	for _, tr := range own.ToolResults() {
		target, ok := r.resolve(set, tr)
		if !ok {
			continue
		}
		r.delegating(span, target)
		return target.Generate(ctx, params)
	}

	r.leaf.logger.Info("router.respond_directly", "router", r.leaf.identity.Name)

	return own, nil
}

// Stream routes the call and returns immediately. The returned stream first
// carries nothing while the router decides; it then relays either the
// selected sub-agent's stream or, without a selection, every event of the
// router's own run.
func (r *Router) Stream(ctx context.Context, params core.CallParameters) (*core.Stream, error) {
	if err := params.Validate(); err != nil {
		r.leaf.logger.Warn("agent.call.invalid", "agent", r.leaf.identity.Name, "error", err.Error())
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	out := core.NewStream(core.DefaultStreamBuffer, cancel)

	go func() {
		defer cancel()

		src, err := r.route(ctx, params)
		if err != nil {
			_ = out.Push(ctx, core.StreamEvent{Type: core.StreamEventError, Agent: r.leaf.identity.Name, Error: err.Error()})
			out.EndWithError(err)
			return
		}

		relay(ctx, src, out)
	}()

	return out, nil
}

// route runs the router's own stream up to the decision and returns the
// stream to relay.
func (r *Router) route(ctx context.Context, params core.CallParameters) (src *core.Stream, err error) {
	ctx, span := startSpan(ctx, "router.route", r.Identity(), core.AgentTypeRouter)
	defer func() { endSpan(span, err) }()

	r.write(core.WriteStatus(ctx, params.Writer, core.StatusRouting))

	set := r.snapshot()
	extras, err := r.extras(set)
	if err != nil {
		return nil, err
	}

	own, err := r.leaf.stream(ctx, params, extras)
	if err != nil {
		return nil, err
	}

	var buffered []core.StreamEvent
	for ev := range own.Events() {
		buffered = append(buffered, ev)

		if ev.Type != core.StreamEventToolResult || ev.ToolResult == nil {
			continue
		}
		target, ok := r.resolve(set, *ev.ToolResult)
		if !ok {
			continue
		}

		// The router's run must be over before the sub-agent starts.
		own.Cancel()
		_, _ = own.Result()

		r.delegating(span, target)
		r.write(core.WriteHandoff(ctx, params.Writer, r.leaf.identity.Name, target.Identity().Name))
		r.write(core.WriteStatus(ctx, params.Writer, core.StatusExecuting))

		return target.Stream(ctx, params)
	}

	r.leaf.logger.Info("router.respond_directly", "router", r.leaf.identity.Name, "buffered", len(buffered))

	return core.ReplayStream(ctx, buffered, own), nil
}

func (r *Router) delegating(span trace.Span, target core.Agent) {
	span.SetAttributes(attribute.String("router.selected", target.Identity().Name))
	r.leaf.logger.Info("router.delegate", "router", r.leaf.identity.Name, "agent", target.Identity().Name)
}

// write logs a failed writer call. Writer failures do not abort routing.
func (r *Router) write(err error) {
	if err != nil {
		r.leaf.logger.Warn("router.writer.error", "router", r.leaf.identity.Name, "error", err.Error())
	}
}

// relay copies src into out and ends out with src's outcome.
func relay(ctx context.Context, src, out *core.Stream) {
	for ev := range src.Events() {
		if err := out.Push(ctx, ev); err != nil {
			src.Cancel()
			_, _ = src.Result()
			out.EndWithError(err)
			return
		}
	}

	res, err := src.Result()
	if err != nil {
		out.EndWithError(err)
		return
	}
	out.End(res)
}
