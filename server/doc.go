// Package server exposes registered agents over HTTP.
//
// Generate calls return JSON. The raw stream endpoint relays every stream
// event as an SSE event named after its type, writer events as "writer"
// events, and ends with "done" or "failed". The UI endpoint speaks the chat
// UI protocol: JSON frames that all carry one message id, a single start and
// finish frame, and a final [DONE] data line.
//
// Errors are reported as
//
//	{"status": 400, "error": "invalid request", "details": "..."}
//
// with 400 for malformed calls, 404 for unknown agents and 500 for
// execution failures.
package server
