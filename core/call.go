package core

// CallParameters is the single input accepted by Agent.Generate and
// Agent.Stream. Exactly one of Prompt and Messages must be set; an empty
// prompt string or an empty message list counts as absent.
//
// Cancellation travels on the context.Context passed next to the parameters
// and is forwarded unchanged through every delegation hop.
type CallParameters struct {
	// Prompt is a single user turn.
	Prompt string
	// Messages is a full conversation history, oldest first.
	Messages []Content
	// Options is an opaque value forwarded to the model (e.g. model.Settings).
	Options any
	// Context is the caller-defined value made available to every tool.
	Context any
	// MaxMessagesInContext overrides the agent-level message window for
	// this call. Values <= 0 mean unset.
	MaxMessagesInContext int
	// Writer receives side-channel events (status, handoff, artifacts).
	Writer Writer
}

// Validate enforces the prompt XOR messages contract.
func (p CallParameters) Validate() error {
	hasPrompt := p.Prompt != ""
	hasMessages := len(p.Messages) > 0

	switch {
	case hasPrompt && hasMessages:
		return &InvalidCallError{Reason: "prompt and messages are mutually exclusive"}
	case !hasPrompt && !hasMessages:
		return &InvalidCallError{Reason: "either prompt or messages must be provided"}
	}

	return nil
}

// EffectiveWindow resolves the message window: the per-call override wins
// over the agent default. Zero means no limit.
func (p CallParameters) EffectiveWindow(agentDefault int) int {
	if p.MaxMessagesInContext > 0 {
		return p.MaxMessagesInContext
	}
	if agentDefault > 0 {
		return agentDefault
	}
	return 0
}

// Conversation returns the messages to send to the model. A prompt becomes a
// single user message; message histories are trimmed to the last limit
// entries when limit > 0. The caller's slice is never modified.
func (p CallParameters) Conversation(limit int) []Content {
	if p.Prompt != "" {
		return []Content{NewTextContent(RoleUser, p.Prompt)}
	}
	return ApplyWindow(p.Messages, limit)
}

// ApplyWindow keeps only the last limit messages. A limit <= 0 returns a copy
// of the full history.
func ApplyWindow(messages []Content, limit int) []Content {
	start := 0
	if limit > 0 && len(messages) > limit {
		start = len(messages) - limit
	}

	out := make([]Content, len(messages)-start)
	copy(out, messages[start:])

	return out
}
