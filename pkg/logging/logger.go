// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: true; false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration: human-readable
// output on stderr, keeping stdout free for command output.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: true,
		Output: os.Stderr,
	}
}

// Valid reports whether level is one of the known levels.
func (l LogLevel) Valid() bool {
	switch strings.ToLower(string(l)) {
	case "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	// Set global log level
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	// Configure output
	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.Kitchen, NoColor: !isTerminal(output)}
	}

	// Create logger with timestamp
	logger := zerolog.New(output).With().Timestamp().Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// isTerminal reports whether w is a character device such as a TTY.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request URLs
//   - Output file writes
//   - Shared cooldown bookkeeping
//
// Info: Normal operation events
//   - Page collected (page number, event counts)
//   - Walk complete
//   - Request succeeded after retry
//   - Shared cooldown recorded
//
// Warn: Warning conditions that don't prevent operation
//   - Retry attempts (429, 5xx, network)
//   - Retry budget exhausted for a page
//   - Shared cooldown active or unavailable
//
// Error: Error conditions requiring attention
//   - Non-retryable responses (4xx other than 429)
//   - Malformed response bodies
//   - Failed walks
//   - Output directory or file failures
//
// Context Fields:
//   - component: package emitting the event (opensea-client, pagination, ...)
//   - collection: collection slug
//   - event_type: sale, offer or listing
//   - page: 1-based page number within a walk
//   - status_code: HTTP status code
//   - error_class: client, server, rate_limit, network
//   - attempt / max_retries: retry index within one page fetch
//   - backoff: delay before the next attempt
