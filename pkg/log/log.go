package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// Buffer, when set, receives every emitted record so the HTTP API
	// can serve recent log history.
	Buffer *Buffer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	var sink io.Writer
	if cfg.JSONOutput {
		sink = output
	} else {
		sink = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	// The buffer taps the JSON stream ahead of any console formatting.
	if cfg.Buffer != nil {
		sink = io.MultiWriter(cfg.Buffer, sink)
	}

	Logger = zerolog.New(sink).With().Timestamp().Logger()
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithUsername creates a child logger with username field
func WithUsername(username string) zerolog.Logger {
	return Logger.With().Str("username", username).Logger()
}

// WithAgent creates a child logger with agent field
func WithAgent(agent string) zerolog.Logger {
	return Logger.With().Str("agent", agent).Logger()
}

// WithSearchID creates a child logger with search_id field
func WithSearchID(searchID string) zerolog.Logger {
	return Logger.With().Str("search_id", searchID).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}
