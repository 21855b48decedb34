// Package log provides structured, colored logging for nightc.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Component loggers for the consolidation pipeline.
var (
	Donation     zerolog.Logger
	Orchestrator zerolog.Logger
	Session      zerolog.Logger
	Records      zerolog.Logger
	Wallet       zerolog.Logger
	Storage      zerolog.Logger
	Launcher     zerolog.Logger
)

func init() {
	Logger = NewConsoleLogger(os.Stderr, "info")
	initComponentLoggers()
}

// Init initializes the logger with the given configuration.
// When file is non-empty, logs go to the console (colored or JSON depending on
// jsonOutput) and to the file, which always receives JSON.
func Init(level string, jsonOutput bool, file string) error {
	switch {
	case file != "":
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		var console io.Writer = os.Stderr
		if !jsonOutput {
			console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		}
		Logger = zerolog.New(zerolog.MultiLevelWriter(console, f)).
			Level(parseLevel(level)).
			With().
			Timestamp().
			Logger()
	case jsonOutput:
		Logger = NewJSONLogger(os.Stderr, level)
	default:
		Logger = NewConsoleLogger(os.Stderr, level)
	}

	initComponentLoggers()
	return nil
}

// NewConsoleLogger creates a colored console logger.
func NewConsoleLogger(w io.Writer, level string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}
	return zerolog.New(output).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// NewJSONLogger creates a structured JSON logger.
func NewJSONLogger(w io.Writer, level string) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Disable silences every logger. Used by tests and by the worker commands,
// whose stdout is the user-visible trace.
func Disable() {
	Logger = zerolog.Nop()
	initComponentLoggers()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func initComponentLoggers() {
	Donation = WithComponent("donation")
	Orchestrator = WithComponent("orchestrator")
	Session = WithComponent("session")
	Records = WithComponent("records")
	Wallet = WithComponent("wallet")
	Storage = WithComponent("storage")
	Launcher = WithComponent("launcher")
}

// WithComponent returns a logger with a component field.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// WithSession returns a logger tagged with a consolidation session id.
func WithSession(id string) zerolog.Logger {
	return Logger.With().Str("session", id).Logger()
}

// Info logs an info message.
func Info() *zerolog.Event {
	return Logger.Info()
}

// Warn logs a warning message.
func Warn() *zerolog.Event {
	return Logger.Warn()
}

// Error logs an error message.
func Error() *zerolog.Event {
	return Logger.Error()
}

// Benchmark helper for timing operations.
func Benchmark(name string) func() {
	start := time.Now()
	return func() {
		Logger.Debug().
			Str("operation", name).
			Dur("duration", time.Since(start)).
			Msg("benchmark")
	}
}
