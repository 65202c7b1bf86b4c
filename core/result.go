package core

// ToolCall is a tool invocation requested by the model during one step.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Step is one model turn of a generation together with the tools it ran.
type Step struct {
	Text         string       `json:"text,omitempty"`
	ToolCalls    []ToolCall   `json:"toolCalls,omitempty"`
	ToolResults  []ToolResult `json:"toolResults,omitempty"`
	FinishReason string       `json:"finishReason,omitempty"`
}

// Usage aggregates token counts over all steps.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GenerationResult is the complete outcome of Agent.Generate.
type GenerationResult struct {
	// Agent names the agent that produced the text. After delegation it is
	// the sub-agent, not the router.
	Agent        string `json:"agent"`
	Text         string `json:"text"`
	Steps        []Step `json:"steps"`
	FinishReason string `json:"finishReason,omitempty"`
	Usage        Usage  `json:"usage"`
}

// ToolResults returns every tool result across all steps in order.
func (r *GenerationResult) ToolResults() []ToolResult {
	if r == nil {
		return nil
	}
	var out []ToolResult
	for _, s := range r.Steps {
		out = append(out, s.ToolResults...)
	}
	return out
}
