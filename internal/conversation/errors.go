package conversation

import (
	"context"
	"errors"

	"github.com/lexiqai/voice-calorie-tracker/internal/dialogue"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
	"github.com/lexiqai/voice-calorie-tracker/internal/stt"
	"github.com/lexiqai/voice-calorie-tracker/internal/tts"
)

var (
	// ErrTurnInProgress is returned when a turn is submitted while another is running
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrTurnAbandoned is returned when the conversation was reset before the turn finished
	ErrTurnAbandoned = errors.New("turn abandoned by reset")
)

// errorKind labels a client error for the errors_total metric
func errorKind(err error) string {
	var sttErr *stt.Error
	var dlgErr *dialogue.Error
	var synthErr *tts.SynthesisError
	var transportErr *tts.TransportError

	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &sttErr):
		return string(sttErr.Kind)
	case errors.As(err, &dlgErr):
		return string(dlgErr.Kind)
	case errors.As(err, &synthErr):
		return "api"
	case errors.As(err, &transportErr):
		return "transport"
	default:
		return "unknown"
	}
}
