// Package agent contains the two agent kinds of the framework:
//
//   - Agent, a leaf bound to one model and a live toolset
//   - Router, a composite that lets its model pick one sub-agent per request
//     and re-dispatches the original call parameters to it
//
// Both implement core.Agent. Construction-time configuration uses
// functional options; after construction only the toolset (RegisterTool,
// UnregisterTool) and a router's sub-agent set (AddSubAgent) change, and
// both are guarded so concurrent calls always observe a consistent graph.
//
// A router runs itself as a leaf with one extra tool, select_agent, whose
// input is the closed set of sub-agent names plus a confidence score. A
// successful selection ends the router's own run; the chosen sub-agent is
// then invoked with the caller's unmodified parameters, context and writer.
// Without a selection the router's own answer is returned.
package agent
