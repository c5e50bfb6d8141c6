package observability

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	loggerOnce   sync.Once
)

// InitLogger initializes the global structured logger.
// Only the first call takes effect.
func InitLogger(level string, pretty bool) {
	loggerOnce.Do(func() {
		setupLogger(os.Stdout, level, pretty)
	})
}

func setupLogger(out io.Writer, level string, pretty bool) {
	zerolog.SetGlobalLevel(parseLevel(level))

	if pretty {
		// Console output for local development
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
		}
	}
	globalLogger = zerolog.New(out).With().Timestamp().Str("service", "calorie-tracker").Logger()

	log.Logger = globalLogger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	case "panic":
		return zerolog.PanicLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetLogger returns the global logger
func GetLogger() zerolog.Logger {
	InitLogger("info", false)
	return globalLogger
}

// WithComponent creates a logger tagged with the component name
func WithComponent(component string) zerolog.Logger {
	return GetLogger().With().Str("component", component).Logger()
}

// WithCorrelationID creates a logger with a correlation ID
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// WithTurn creates a logger scoped to one conversation turn
func WithTurn(sessionID, turnID string) zerolog.Logger {
	return GetLogger().With().
		Str("session_id", sessionID).
		Str("turn_id", turnID).
		Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
