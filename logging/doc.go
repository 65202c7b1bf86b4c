// Package logging provides the minimal Logger interface the engine, agents
// and the HTTP server log through, plus slog based implementations.
//
//   - Logger: Debug/Info/Warn/Error with dotted event names and key/value args
//   - NewLogger / NewSlogLogger: JSON or text slog handlers at a given level
//   - NoOpLogger: the default everywhere a logger is optional
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "text", false)
//	eng := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
