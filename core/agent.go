package core

import "context"

// Agent is the invocation contract shared by leaf agents and routers.
//
// Implementations must:
//   - Validate CallParameters before any model invocation
//   - Respect context cancellation
//   - Forward the call's writer unchanged to nested agents and tools
//   - Be safe for concurrent calls; the agent graph is read-only per call
type Agent interface {
	Identity() Identity
	Generate(ctx context.Context, params CallParameters) (*GenerationResult, error)
	Stream(ctx context.Context, params CallParameters) (*Stream, error)
	Describe() AgentInfoNode
}

// Identity is the immutable description of an agent. Name is unique among
// the sub-agents of one router because it is the value the router's model
// selects.
type Identity struct {
	Name              string `json:"name"`
	CapabilitySummary string `json:"capabilitySummary"`
	ModelID           string `json:"modelId,omitempty"`
}

// AgentType distinguishes leaf agents from routers in introspection output.
type AgentType string

// Agent types.
const (
	AgentTypeAgent  AgentType = "agent"
	AgentTypeRouter AgentType = "router"
)

// ToolInfo describes one registered tool including its input schema.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// AgentInfoNode is the recursive, read-only description of an agent and its
// descendants. It is rebuilt on every Describe call. Tools lists tool names
// in lexical order; ToolSchemas carries the same tools with descriptions and
// input schemas.
type AgentInfoNode struct {
	Type              AgentType       `json:"type"`
	Name              string          `json:"name"`
	CapabilitySummary string          `json:"capabilitySummary"`
	ModelID           string          `json:"modelId,omitempty"`
	Tools             []string        `json:"tools,omitempty"`
	ToolSchemas       []ToolInfo      `json:"toolSchemas,omitempty"`
	SubAgents         []AgentInfoNode `json:"subAgents,omitempty"`
}
