package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentroute/logging"
)

// Agent types accepted in configuration files.
const (
	AgentTypeAgent  = "agent"
	AgentTypeRouter = "router"
)

// Model providers known to DefaultModelFactory.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderMock      = "mock"
)

// Config is the root of a configuration file.
type Config struct {
	Server  ServerConfig           `yaml:"server"`
	Logging LoggingConfig          `yaml:"logging"`
	Engine  EngineConfig           `yaml:"engine"`
	Models  map[string]ModelConfig `yaml:"models"`
	Agents  []AgentConfig          `yaml:"agents"`

	// Expose lists the agents registered with the engine. When empty, every
	// agent that is not a sub-agent of a router is exposed.
	Expose []string `yaml:"expose,omitempty"`
}

// ServerConfig configures the HTTP boundary.
type ServerConfig struct {
	Addr      string          `yaml:"addr"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig configures the server's token bucket. A zero
// RequestsPerSecond disables rate limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requestsPerSecond"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig selects the log level and format (json or text).
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"addSource"`
}

// EngineConfig tunes the engine.
type EngineConfig struct {
	MaxConcurrentInvocations int `yaml:"maxConcurrentInvocations"`
}

// ModelConfig describes one named model binding.
type ModelConfig struct {
	Provider    string   `yaml:"provider"`
	Model       string   `yaml:"model"`
	APIKey      string   `yaml:"apiKey,omitempty"`
	BaseURL     string   `yaml:"baseURL,omitempty"`
	Temperature *float64 `yaml:"temperature,omitempty"`
	MaxTokens   int64    `yaml:"maxTokens,omitempty"`

	// Responses maps prompts to canned answers for the mock provider.
	Responses map[string]string `yaml:"responses,omitempty"`
}

// AgentConfig describes a leaf agent or a router.
type AgentConfig struct {
	Name                 string   `yaml:"name"`
	Type                 string   `yaml:"type,omitempty"`
	Model                string   `yaml:"model"`
	CapabilitySummary    string   `yaml:"capabilitySummary"`
	Instruction          string   `yaml:"instruction,omitempty"`
	MaxMessagesInContext int      `yaml:"maxMessagesInContext,omitempty"`
	MaxSteps             int      `yaml:"maxSteps,omitempty"`
	Tools                []string `yaml:"tools,omitempty"`

	// Router only.
	SubAgents           []string `yaml:"subAgents,omitempty"`
	ConfidenceThreshold *float64 `yaml:"confidenceThreshold,omitempty"`
}

// IsRouter reports whether the entry describes a router.
func (a AgentConfig) IsRouter() bool { return a.Type == AgentTypeRouter }

// Default returns a configuration with the server and logging defaults.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: ":8080"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Engine:  EngineConfig{MaxConcurrentInvocations: 10},
	}
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse expands ${VAR} and ${VAR:-default} references against the
// environment, decodes the YAML over Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(strings.NewReader(ExpandEnv(string(data))))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default}. Bare $VAR is left alone so
// instructions may contain dollar amounts.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}

// Validate checks references between models and agents. Cycles between
// routers are reported by Build.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		errs = append(errs, fmt.Errorf("logging: unknown format %q", c.Logging.Format))
	}
	if c.Server.RateLimit.RequestsPerSecond < 0 || c.Server.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("server: rate limit values must not be negative"))
	}

	for name, m := range c.Models {
		switch m.Provider {
		case ProviderOpenAI, ProviderAnthropic, ProviderMock:
		default:
			errs = append(errs, fmt.Errorf("model %q: unknown provider %q", name, m.Provider))
		}
	}

	if len(c.Agents) == 0 {
		errs = append(errs, errors.New("no agents configured"))
	}

	names := make(map[string]AgentConfig, len(c.Agents))
	for i, a := range c.Agents {
		if a.Name == "" {
			errs = append(errs, fmt.Errorf("agent #%d: name is required", i))
			continue
		}
		if _, dup := names[a.Name]; dup {
			errs = append(errs, fmt.Errorf("agent %q: defined more than once", a.Name))
			continue
		}
		names[a.Name] = a

		switch a.Type {
		case "", AgentTypeAgent:
			if len(a.SubAgents) > 0 {
				errs = append(errs, fmt.Errorf("agent %q: subAgents require type %q", a.Name, AgentTypeRouter))
			}
		case AgentTypeRouter:
		default:
			errs = append(errs, fmt.Errorf("agent %q: unknown type %q", a.Name, a.Type))
		}

		if _, ok := c.Models[a.Model]; !ok {
			errs = append(errs, fmt.Errorf("agent %q: unknown model %q", a.Name, a.Model))
		}
		if t := a.ConfidenceThreshold; t != nil && (*t < 0 || *t > 1) {
			errs = append(errs, fmt.Errorf("agent %q: confidenceThreshold %v outside [0, 1]", a.Name, *t))
		}
	}

	for _, a := range c.Agents {
		for _, sub := range a.SubAgents {
			if _, ok := names[sub]; !ok {
				errs = append(errs, fmt.Errorf("agent %q: unknown sub-agent %q", a.Name, sub))
			}
		}
	}
	for _, name := range c.Expose {
		if _, ok := names[name]; !ok {
			errs = append(errs, fmt.Errorf("expose: unknown agent %q", name))
		}
	}

	return errors.Join(errs...)
}

// Exposed returns the names of the agents to register with the engine, in
// file order.
func (c *Config) Exposed() []string {
	if len(c.Expose) > 0 {
		return append([]string(nil), c.Expose...)
	}

	nested := map[string]bool{}
	for _, a := range c.Agents {
		for _, sub := range a.SubAgents {
			nested[sub] = true
		}
	}

	var out []string
	for _, a := range c.Agents {
		if !nested[a.Name] {
			out = append(out, a.Name)
		}
	}
	return out
}

// LoggerConfig converts the logging section for logging.NewLogger.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	lc := logging.DefaultLoggerConfig()
	lc.Level, _ = logging.ParseLevel(c.Logging.Level)
	if c.Logging.Format != "" {
		lc.Format = c.Logging.Format
	}
	lc.AddSource = c.Logging.AddSource
	return lc
}
