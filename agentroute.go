// Package agentroute composes language-model agents into routing
// hierarchies. A router agent decides per request which of its sub-agents
// answers and re-invokes that sub-agent with the caller's original
// parameters; nested routers recurse until a leaf agent runs.
//
// Most applications:
//  1. build leaf agents and routers with the agent package, or from a YAML
//     file with the config package
//  2. register the top-level agents on an AgentRoute
//  3. call Generate or Stream directly, or serve Handler over HTTP
package agentroute

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/engine"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/server"
)

// Options configures an AgentRoute.
type Options struct {
	EngineConfig engine.Config
	Logger       logging.Logger
}

// AgentRoute bundles an engine with its HTTP boundary.
type AgentRoute struct {
	opts   Options
	engine *engine.Engine
}

// New creates an AgentRoute with the default engine configuration and a
// no-op logger unless overridden.
func New(optFns ...func(o *Options)) *AgentRoute {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	eng := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Logger = opts.Logger
	})

	return &AgentRoute{opts: opts, engine: eng}
}

// Engine returns the underlying engine, e.g. to register callbacks.
func (r *AgentRoute) Engine() *engine.Engine { return r.engine }

// Register adds top-level agents.
func (r *AgentRoute) Register(agents ...core.Agent) error {
	for _, a := range agents {
		if err := r.engine.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Generate runs the named agent to completion.
func (r *AgentRoute) Generate(ctx context.Context, agentName string, params core.CallParameters) (*core.GenerationResult, error) {
	_, res, err := r.engine.Generate(ctx, agentName, params)
	return res, err
}

// Stream starts the named agent and returns its stream handle.
func (r *AgentRoute) Stream(ctx context.Context, agentName string, params core.CallParameters) (*core.Stream, error) {
	_, s, err := r.engine.Stream(ctx, agentName, params)
	return s, err
}

// StreamSync streams the named agent, collects every event and returns them
// together with the final result. On failure the events collected so far
// are returned with the error.
func (r *AgentRoute) StreamSync(ctx context.Context, agentName string, params core.CallParameters) ([]core.StreamEvent, *core.GenerationResult, error) {
	_, s, err := r.engine.Stream(ctx, agentName, params)
	if err != nil {
		return nil, nil, err
	}

	var events []core.StreamEvent
	for {
		select {
		case <-ctx.Done():
			s.Cancel()
			_, _ = s.Result()
			return events, nil, fmt.Errorf("stream %q: %w", agentName, ctx.Err())
		case ev, ok := <-s.Events():
			if !ok {
				res, err := s.Result()
				return events, res, err
			}
			events = append(events, ev)
		}
	}
}

// Handler returns the HTTP boundary for the registered agents.
func (r *AgentRoute) Handler(optFns ...func(o *server.Options)) http.Handler {
	opts := []func(o *server.Options){func(o *server.Options) { o.Logger = r.opts.Logger }}
	return server.New(r.engine, append(opts, optFns...)...).Handler()
}
