// Package engine hosts the top-level agents of an application.
//
// An Engine is a name-indexed registry of agents (leaf agents or routers)
// that adds the concerns a single agent does not own:
//
//   - Lookup by name, failing with *core.AgentNotFoundError
//   - Introspection of every registered agent tree (List)
//   - Invocation IDs, taken from the context or generated, and Cancel
//   - A bound on concurrent invocations
//   - before_agent, after_agent and on_error callbacks
//
// The engine never interprets the call: parameters, including the hidden
// writer, are forwarded to the agent unchanged once the before callbacks ran.
package engine
