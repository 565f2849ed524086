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
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// withField builds a child of Logger carrying a single string field,
// the common case every With* helper below reduces to.
func withField(key, value string) zerolog.Logger {
	return Logger.With().Str(key, value).Logger()
}

// WithComponent scopes subsequent log lines to a named subsystem
// ("worker", "report", "agentapi", ...), the field every component in
// this repo attaches first before adding its own context.
func WithComponent(component string) zerolog.Logger {
	return withField("component", component)
}

// WithAgent scopes a logger to one agent identity, for the coordinator
// side of the protocol where a single process handles many agents at
// once and log lines need to be attributable back to one of them.
func WithAgent(agent string) zerolog.Logger {
	return withField("agent", agent)
}

// WithExperiment scopes a logger to one experiment name.
func WithExperiment(experiment string) zerolog.Logger {
	return withField("experiment", experiment)
}

// WithTaskID scopes a logger to one task's graph-local key.
func WithTaskID(taskID string) zerolog.Logger {
	return withField("task_id", taskID)
}
