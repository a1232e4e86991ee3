// Package logging provides a minimal logging interface and adapters for dialogmesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the dialog stack, prompts and skill bridge use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a *zap.Logger
//   - DialogLogger with conversation scoped attributes and turn/skill/token helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	bot, err := dialogmesh.New(root, func(o *dialogmesh.Options) { o.Logger = logger })
//
// The interface stays minimal so any structured logger can be plugged in.
package logging
