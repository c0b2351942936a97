// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

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

// Component names attached to every log line as the "component" field.
const (
	ComponentClient     = "teamtailor-client"
	ComponentPagination = "pagination"
	ComponentExporter   = "exporter"
	ComponentRateLimit  = "rate-limit"
	ComponentServer     = "server"
	ComponentCLI        = "cli"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(string(cfg.Level)))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to a zerolog.Level. Unknown names fall
// back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request URLs and page numbers
//   - Rate limit header values
//   - Per-page row counts
//
// Info: Normal operation events
//   - Export start and completion
//   - Progress labels ("Fetched page 3/12")
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Rate limited responses and the wait before the next retry
//   - Low rate limit window, waits for an exhausted window to reset
//   - Rate limit tracker errors (export continues)
//
// Error: Error conditions requiring attention
//   - Failed exports (after retries)
//   - Page limit exceeded
//   - Configuration errors
//
// Context Fields:
//   - page: page number being fetched
//   - total_pages: estimated page count, once known
//   - status_code: HTTP status code
//   - duration: Request or export duration
//   - error_class: Error classification (auth, forbidden, rate_limit, client, server, network, decode)
//   - retry: retry number (1-based)
//   - backoff: wait before the next retry
//   - outcome: export outcome
//   - rows: rows produced
//
// The API credential is never logged.
