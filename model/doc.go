// Package model defines the provider-agnostic abstractions for interacting
// with language models inside agentroute.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool / function call representation (ToolDefinition)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockModel)
//
// Providers (see the openai and anthropic sub-packages) implement Model so
// agents and the invocation loop remain decoupled from vendor SDKs.
package model
