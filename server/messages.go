package server

import (
	"fmt"
	"strings"

	"github.com/hupe1980/agentroute/core"
)

// GenerateRequest is the body accepted by the generate and raw stream
// endpoints. Exactly one of Prompt and Messages must be set.
type GenerateRequest struct {
	Prompt               string    `json:"prompt,omitempty"`
	Messages             []Message `json:"messages,omitempty"`
	Options              any       `json:"options,omitempty"`
	Context              any       `json:"context,omitempty"`
	MaxMessagesInContext int       `json:"maxMessagesInContext,omitempty"`
}

// Message is one plain-text conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// UIRequest is the body accepted by the UI stream endpoint.
type UIRequest struct {
	// ID identifies the client's chat; it is logged, not interpreted.
	ID                   string      `json:"id,omitempty"`
	Messages             []UIMessage `json:"messages"`
	Options              any         `json:"options,omitempty"`
	Context              any         `json:"context,omitempty"`
	MaxMessagesInContext int         `json:"maxMessagesInContext,omitempty"`
}

// UIMessage is a message as sent by chat user interfaces: a role and a list
// of typed parts. Only text parts reach the model.
type UIMessage struct {
	ID    string   `json:"id,omitempty"`
	Role  string   `json:"role"`
	Parts []UIPart `json:"parts"`
}

// UIPart is one part of a UIMessage.
type UIPart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var allowedRoles = map[string]bool{
	core.RoleSystem:    true,
	core.RoleUser:      true,
	core.RoleAssistant: true,
}

// params converts the request into call parameters.
func (r GenerateRequest) params() (core.CallParameters, error) {
	p := core.CallParameters{
		Prompt:               r.Prompt,
		Options:              r.Options,
		Context:              r.Context,
		MaxMessagesInContext: r.MaxMessagesInContext,
	}

	for i, m := range r.Messages {
		if !allowedRoles[m.Role] {
			return p, badRequest{fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)}
		}
		p.Messages = append(p.Messages, core.NewTextContent(m.Role, m.Content))
	}

	return p, p.Validate()
}

// params validates the UI message shape and converts it into call
// parameters carrying a message history.
func (r UIRequest) params() (core.CallParameters, error) {
	p := core.CallParameters{
		Options:              r.Options,
		Context:              r.Context,
		MaxMessagesInContext: r.MaxMessagesInContext,
	}

	if len(r.Messages) == 0 {
		return p, &core.InvalidCallError{Reason: "messages must not be empty"}
	}

	for i, m := range r.Messages {
		if !allowedRoles[m.Role] {
			return p, badRequest{fmt.Errorf("messages[%d]: unsupported role %q", i, m.Role)}
		}

		var texts []string
		for _, part := range m.Parts {
			if part.Type == "text" && part.Text != "" {
				texts = append(texts, part.Text)
			}
		}
		if len(texts) == 0 {
			return p, badRequest{fmt.Errorf("messages[%d]: no text part", i)}
		}

		p.Messages = append(p.Messages, core.NewTextContent(m.Role, strings.Join(texts, "\n")))
	}

	return p, nil
}
