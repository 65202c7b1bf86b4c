// Package core provides the shared contracts of agentroute:
//
//   - Agent, Identity and the AgentInfoNode introspection tree
//   - CallParameters with the prompt XOR messages rule and message windowing
//   - Writer, the per-call side channel, and CallEnvelope which hides it from
//     caller-defined tool context
//   - Stream, the handle returned by streamed generations
//   - Content / Part conversation messages
//   - the typed error taxonomy shared by every package
//
// Concrete agents, the model invocation loop and transports live elsewhere.
package core
