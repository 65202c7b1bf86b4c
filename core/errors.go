package core

import (
	"errors"
	"fmt"
)

// Sentinel values matched by the typed errors below through errors.Is.
var (
	ErrInvalidCall    = errors.New("invalid call")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrAgentExecution = errors.New("agent execution failed")
	ErrMissingWriter  = errors.New("missing writer")
	ErrValidation     = errors.New("validation failed")
)

// InvalidCallError reports call parameters that violate the invocation
// contract, e.g. both or neither of prompt and messages supplied.
type InvalidCallError struct {
	Reason string
}

func (e *InvalidCallError) Error() string { return fmt.Sprintf("invalid call: %s", e.Reason) }

// Is implements errors.Is matching against ErrInvalidCall.
func (e *InvalidCallError) Is(target error) bool { return target == ErrInvalidCall }

// AgentNotFoundError is returned when a named agent is not registered.
type AgentNotFoundError struct {
	Name string
}

func (e *AgentNotFoundError) Error() string { return fmt.Sprintf("agent %q not found", e.Name) }

// Is implements errors.Is matching against ErrAgentNotFound.
func (e *AgentNotFoundError) Is(target error) bool { return target == ErrAgentNotFound }

// AgentExecutionError wraps a failure raised by the model invocation loop
// while an agent was handling a call.
type AgentExecutionError struct {
	Agent string
	Err   error
}

func (e *AgentExecutionError) Error() string {
	return fmt.Sprintf("agent %q execution failed: %v", e.Agent, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AgentExecutionError) Unwrap() error { return e.Err }

// Is implements errors.Is matching against ErrAgentExecution.
func (e *AgentExecutionError) Is(target error) bool { return target == ErrAgentExecution }

// MissingWriterError is returned by operations that need a writer when the
// call carried none.
type MissingWriterError struct {
	Operation string
}

func (e *MissingWriterError) Error() string {
	return fmt.Sprintf("%s requires a writer but none was supplied", e.Operation)
}

// Is implements errors.Is matching against ErrMissingWriter.
func (e *MissingWriterError) Is(target error) bool { return target == ErrMissingWriter }

// ValidationError reports a value that does not satisfy its declared schema.
type ValidationError struct {
	Subject string // what was validated (artifact name, tool input, request body)
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("validation failed: %s", e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Subject, e.Message)
}

// Unwrap returns the underlying schema error, if any.
func (e *ValidationError) Unwrap() error { return e.Err }

// Is implements errors.Is matching against ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
