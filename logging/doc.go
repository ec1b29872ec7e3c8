// Package logging provides a minimal logging interface and adapters for gambit.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the loader, invoker and orchestrator use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - GambitLogger, a contextual slog wrapper with json, text and tint output
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "tint", false)
//	g := gambit.New(func(o *gambit.Options) { o.Logger = logger })
package logging
