// Package logger wraps charmbracelet/log with the process-wide logger used by wfplug.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

var Logger *log.Logger

func init() {
	Logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
	})

	// Set log level from environment variable
	SetLevel(os.Getenv("LOG_LEVEL"))
}

// ParseLevel maps a level name to a log.Level. Unknown or empty names map to info.
func ParseLevel(name string) log.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return log.DebugLevel
	case "WARN", "WARNING":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	case "FATAL":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

// SetLevel changes the level of the process logger. An empty name is ignored
// once a level has been set from the environment.
func SetLevel(name string) {
	if name == "" && Logger.GetLevel() != log.InfoLevel {
		return
	}
	Logger.SetLevel(ParseLevel(name))
}

// SetOutput redirects the process logger, mostly for tests and the watch TUI.
func SetOutput(w io.Writer) {
	Logger.SetOutput(w)
}

// With returns a child logger that prefixes every line with the component name.
func With(component string) *log.Logger {
	return Logger.WithPrefix(component)
}

// Convenience functions for common operations
func Info(msg interface{}, keyvals ...interface{}) {
	Logger.Info(msg, keyvals...)
}

func Debug(msg interface{}, keyvals ...interface{}) {
	Logger.Debug(msg, keyvals...)
}

func Warn(msg interface{}, keyvals ...interface{}) {
	Logger.Warn(msg, keyvals...)
}

func Error(msg interface{}, keyvals ...interface{}) {
	Logger.Error(msg, keyvals...)
}

func Fatal(msg interface{}, keyvals ...interface{}) {
	Logger.Fatal(msg, keyvals...)
}

func Infof(format string, args ...interface{}) {
	Logger.Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Logger.Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Logger.Warnf(format, args...)
}

func Errorf(format string, args ...interface{}) {
	Logger.Errorf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	Logger.Fatalf(format, args...)
}
