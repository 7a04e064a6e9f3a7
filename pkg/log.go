package pkg

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Component identifies a subsystem for log filtering.
type Component string

// Engine component identifiers.
const (
	ComponentHost      Component = "host"
	ComponentHAL       Component = "hal"
	ComponentTransfer  Component = "transfer"
	ComponentScheduler Component = "scheduler"
	ComponentEndpoint  Component = "endpoint"
)

// LogFormat specifies the output format for logging.
type LogFormat int

// Log format options.
const (
	LogFormatText LogFormat = iota // Text format (default)
	LogFormatJSON                  // JSON format
)

// badKey is the field name used for a trailing value without a key.
const badKey = "!BADKEY"

var (
	// DefaultLogger is the logger used by the engine.
	DefaultLogger *logrus.Logger

	// logLevel is the minimum level applied to loggers built by this package.
	logLevel = logrus.WarnLevel

	// logMutex protects logger configuration.
	logMutex sync.RWMutex
)

func init() {
	DefaultLogger = NewLogger(os.Stderr, logLevel)
}

// SetLogLevel sets the minimum log level for all engine logging.
func SetLogLevel(level logrus.Level) {
	logMutex.Lock()
	defer logMutex.Unlock()
	logLevel = level
	DefaultLogger.SetLevel(level)
}

// GetLogLevel returns the current minimum log level.
func GetLogLevel() logrus.Level {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return logLevel
}

// SetLogger replaces the default logger with a custom logger.
func SetLogger(logger *logrus.Logger) {
	logMutex.Lock()
	defer logMutex.Unlock()
	DefaultLogger = logger
}

// SetLogFormat configures the default logger to use the specified format.
// The logger writes to os.Stderr and uses the current log level.
func SetLogFormat(format LogFormat) {
	logMutex.Lock()
	defer logMutex.Unlock()
	switch format {
	case LogFormatJSON:
		DefaultLogger = NewJSONLogger(os.Stderr, logLevel)
	default:
		DefaultLogger = NewLogger(os.Stderr, logLevel)
	}
}

// NewLogger creates a new text logger writing to the given writer.
func NewLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.TextFormatter{DisableColors: true})
	l.SetLevel(level)
	return l
}

// NewJSONLogger creates a new JSON logger writing to the given writer.
func NewJSONLogger(w io.Writer, level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(&logrus.JSONFormatter{})
	l.SetLevel(level)
	return l
}

// fields converts alternating key/value arguments into logrus fields.
func fields(component Component, args []any) logrus.Fields {
	f := make(logrus.Fields, len(args)/2+1)
	f["component"] = string(component)
	for i := 0; i < len(args); i += 2 {
		if i+1 == len(args) {
			f[badKey] = args[i]
			break
		}
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		f[key] = args[i+1]
	}
	return f
}

func logger() *logrus.Logger {
	logMutex.RLock()
	defer logMutex.RUnlock()
	return DefaultLogger
}

// LogDebug logs a debug message with the given component.
func LogDebug(component Component, msg string, args ...any) {
	l := logger()
	if !l.IsLevelEnabled(logrus.DebugLevel) {
		return
	}
	l.WithFields(fields(component, args)).Debug(msg)
}

// LogInfo logs an info message with the given component.
func LogInfo(component Component, msg string, args ...any) {
	l := logger()
	if !l.IsLevelEnabled(logrus.InfoLevel) {
		return
	}
	l.WithFields(fields(component, args)).Info(msg)
}

// LogWarn logs a warning message with the given component.
func LogWarn(component Component, msg string, args ...any) {
	logger().WithFields(fields(component, args)).Warn(msg)
}

// LogError logs an error message with the given component.
func LogError(component Component, msg string, args ...any) {
	logger().WithFields(fields(component, args)).Error(msg)
}
