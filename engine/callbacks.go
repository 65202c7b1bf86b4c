package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/agentroute/core"
	"github.com/hupe1980/agentroute/logging"
)

// CallbackType defines the lifecycle points of an engine invocation where
// callbacks run.
type CallbackType string

const (
	// CallbackBeforeAgent runs before the agent is called. Returning an error
	// rejects the invocation; the callback may adjust the call parameters.
	CallbackBeforeAgent CallbackType = "before_agent"

	// CallbackAfterAgent runs after the agent finished successfully. For
	// streamed invocations it runs once the stream has ended.
	CallbackAfterAgent CallbackType = "after_agent"

	// CallbackOnError runs when the invocation failed. Errors returned by
	// these callbacks are logged and otherwise ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the invocation details handed to each callback.
type CallbackContext struct {
	InvocationID string
	AgentName    string
	CallbackType CallbackType

	// Params is the call about to be executed. Before callbacks may modify it.
	Params *core.CallParameters

	// Result is set for after callbacks.
	Result *core.GenerationResult

	// Err is set for error callbacks.
	Err error

	// Metadata is shared by all callbacks of one invocation.
	Metadata map[string]any
}

// Callback is an invocation lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	audit := NewFunctionCallback(CallbackBeforeAgent,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("calling %s", cc.AgentName)
//	        return nil
//	    })
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType { return c.callbackType }

// Execute calls the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager stores callbacks per type and runs them in registration
// order. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[callback.Type()] = append(cm.callbacks[callback.Type()], callback)
}

// ExecuteCallbacks runs the callbacks of one type sequentially and stops at
// the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType
	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}
	return nil
}

// LoggingCallback logs every invocation phase it is registered for.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for one phase.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{callbackType: callbackType, logger: logger}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType { return c.callbackType }

// Execute logs the phase with the invocation details.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{
		"phase", string(c.callbackType),
		"invocation_id", callbackCtx.InvocationID,
		"agent", callbackCtx.AgentName,
	}
	if callbackCtx.Result != nil {
		args = append(args, "finish_reason", callbackCtx.Result.FinishReason, "steps", len(callbackCtx.Result.Steps))
	}
	if callbackCtx.Err != nil {
		c.logger.Warn("engine.callback", append(args, "error", callbackCtx.Err.Error())...)
		return nil
	}
	c.logger.Info("engine.callback", args...)
	return nil
}
