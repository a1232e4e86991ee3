package core

import "github.com/hupe1980/dialogmesh/logging"

// turnLogger gives a TurnContext LogDebug/LogInfo/LogWarn/LogError methods
// that tag every entry with the turn's channel and conversation.
type turnLogger struct {
	logger logging.Logger
	fields func() []any
}

func newTurnLogger(l logging.Logger, fields func() []any) *turnLogger {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &turnLogger{logger: l, fields: fields}
}

// Logger returns the underlying logger.
func (l *turnLogger) Logger() logging.Logger { return l.logger }

// LogDebug logs a debug message.
func (l *turnLogger) LogDebug(msg string, args ...any) { l.logger.Debug(msg, l.with(args)...) }

// LogInfo logs an info message.
func (l *turnLogger) LogInfo(msg string, args ...any) { l.logger.Info(msg, l.with(args)...) }

// LogWarn logs a warning message.
func (l *turnLogger) LogWarn(msg string, args ...any) { l.logger.Warn(msg, l.with(args)...) }

// LogError logs an error message.
func (l *turnLogger) LogError(msg string, args ...any) { l.logger.Error(msg, l.with(args)...) }

func (l *turnLogger) with(args []any) []any {
	if l.fields == nil {
		return args
	}
	return append(l.fields(), args...)
}
