package logger

import (
	"github.com/hsdfat/go-zlog/logger"
	"go.uber.org/zap"
)

// Logger is the logging interface handed to stack components
type Logger = logger.LoggerI

// Log is the global logger instance for the diam-stack project
var Log Logger = logger.NewLogger()

func init() {
	Log.(*logger.Logger).SugaredLogger = Log.(*logger.Logger).SugaredLogger.WithOptions(zap.AddCallerSkip(1))
}

// SetLevel sets the global log level
// Valid levels: "debug", "info", "warn", "error", "fatal"
func SetLevel(level string) {
	logger.SetLevel(level)
}

// WithFields creates a new logger with contextual fields
// Example: logger.WithFields("conn_id", "abc123", "state", "CONNECTED")
func WithFields(args ...any) Logger {
	return Log.With(args...).(Logger)
}

// New returns a component logger tagged with name. An empty level keeps the
// current global level.
func New(name string, level string) Logger {
	if level != "" {
		SetLevel(level)
	}
	return WithFields("component", name)
}
