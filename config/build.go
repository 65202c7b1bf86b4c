package config

import (
	"errors"
	"fmt"
	"strings"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/agentroute/agent"
	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/engine"
	"github.com/hupe1980/agentroute/logging"
	"github.com/hupe1980/agentroute/model"
	"github.com/hupe1980/agentroute/model/anthropic"
	"github.com/hupe1980/agentroute/model/openai"
	"github.com/hupe1980/agentroute/tool"
)

// ErrCycle is returned by Build when routers reference each other.
var ErrCycle = errors.New("agent graph contains a cycle")

// ModelFactory creates the model bound under name.
type ModelFactory func(name string, mc ModelConfig) (model.Model, error)

// DefaultModelFactory builds the openai, anthropic and mock providers.
func DefaultModelFactory(name string, mc ModelConfig) (model.Model, error) {
	switch mc.Provider {
	case ProviderOpenAI:
		return openai.NewModel(func(o *openai.Options) {
			if mc.Model != "" {
				o.Model = mc.Model
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = mc.MaxTokens
			}
		}), nil
	case ProviderAnthropic:
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Model != "" {
				o.Model = anthropicsdk.Model(mc.Model)
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
			if mc.Temperature != nil {
				o.Temperature = *mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = mc.MaxTokens
			}
		}), nil
	case ProviderMock:
		modelName := mc.Model
		if modelName == "" {
			modelName = name
		}
		m := model.NewMockModel(modelName, ProviderMock)
		for prompt, answer := range mc.Responses {
			m.AddResponse(prompt, answer)
		}
		return m, nil
	default:
		return nil, fmt.Errorf("model %q: unknown provider %q", name, mc.Provider)
	}
}

// BuildOptions configures Build.
type BuildOptions struct {
	Models ModelFactory
	// Tools resolves the tool names listed by agents.
	Tools  map[string]tool.Tool
	Logger logging.Logger
}

// Graph is the agent tree built from a Config.
type Graph struct {
	Agents  map[string]core.Agent
	Exposed []core.Agent
}

// Register adds the exposed agents to eng.
func (g *Graph) Register(eng *engine.Engine) error {
	for _, a := range g.Exposed {
		if err := eng.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Build creates every configured agent. Sub-agents are built before the
// routers that reference them and shared when referenced more than once.
func Build(cfg *Config, optFns ...func(o *BuildOptions)) (*Graph, error) {
	opts := BuildOptions{
		Models: DefaultModelFactory,
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &builder{
		cfg:     cfg,
		opts:    opts,
		configs: make(map[string]AgentConfig, len(cfg.Agents)),
		models:  map[string]model.Model{},
		built:   map[string]core.Agent{},
		visited: map[string]bool{},
	}
	for _, a := range cfg.Agents {
		b.configs[a.Name] = a
	}

	for _, a := range cfg.Agents {
		if _, err := b.agent(a.Name, nil); err != nil {
			return nil, err
		}
	}

	g := &Graph{Agents: b.built}
	for _, name := range cfg.Exposed() {
		g.Exposed = append(g.Exposed, b.built[name])
	}
	return g, nil
}

type builder struct {
	cfg     *Config
	opts    BuildOptions
	configs map[string]AgentConfig
	models  map[string]model.Model
	built   map[string]core.Agent
	visited map[string]bool // on the current path
}

func (b *builder) agent(name string, path []string) (core.Agent, error) {
	if a, ok := b.built[name]; ok {
		return a, nil
	}
	path = append(path, name)
	if b.visited[name] {
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(path, " -> "))
	}
	b.visited[name] = true
	defer delete(b.visited, name)

	ac := b.configs[name]

	m, err := b.model(ac.Model)
	if err != nil {
		return nil, err
	}

	tools := make([]tool.Tool, 0, len(ac.Tools))
	for _, tn := range ac.Tools {
		t, ok := b.opts.Tools[tn]
		if !ok {
			return nil, fmt.Errorf("agent %q: unknown tool %q", name, tn)
		}
		tools = append(tools, t)
	}

	leafOpts := func(o *agent.Options) {
		if ac.Instruction != "" {
			o.Instruction = agent.NewInstructionFromText(ac.Instruction)
		}
		o.CapabilitySummary = ac.CapabilitySummary
		o.MaxMessagesInContext = ac.MaxMessagesInContext
		o.MaxSteps = ac.MaxSteps
		o.Tools = tools
		o.Logger = b.opts.Logger
	}

	var a core.Agent
	if ac.IsRouter() {
		subs := make([]core.Agent, 0, len(ac.SubAgents))
		for _, sub := range ac.SubAgents {
			s, err := b.agent(sub, path)
			if err != nil {
				return nil, err
			}
			subs = append(subs, s)
		}

		r, err := agent.NewRouter(name, m, subs, func(o *agent.RouterOptions) {
			leafOpts(&o.Options)
			if ac.ConfidenceThreshold != nil {
				o.ConfidenceThreshold = *ac.ConfidenceThreshold
			}
		})
		if err != nil {
			return nil, fmt.Errorf("agent %q: %w", name, err)
		}
		a = r
	} else {
		a = agent.New(name, m, leafOpts)
	}

	b.built[name] = a
	b.opts.Logger.Debug("config.agent.built", "agent", name, "router", ac.IsRouter())
	return a, nil
}

func (b *builder) model(name string) (model.Model, error) {
	if m, ok := b.models[name]; ok {
		return m, nil
	}
	m, err := b.opts.Models(name, b.cfg.Models[name])
	if err != nil {
		return nil, err
	}
	b.models[name] = m
	return m, nil
}
