package dialogue

import (
	"context"
	"fmt"

	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

// Role identifies who produced a transcript entry
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the conversation transcript
type Message struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
}

// Generator produces the assistant's next utterance from the full transcript
type Generator interface {
	NextUtterance(ctx context.Context, transcript []Message) (string, error)
}

// ErrorKind classifies dialogue failures
type ErrorKind string

const (
	KindTransport     ErrorKind = "transport"
	KindAPI           ErrorKind = "api"
	KindDecode        ErrorKind = "decode"
	KindEmptyResponse ErrorKind = "empty_response"
	KindCircuitOpen   ErrorKind = "circuit_open"
)

// Error is returned for every dialogue failure
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s dialogue %s error", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt could succeed
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return true
	case KindAPI:
		return resilience.IsRetryableHTTPStatus(e.StatusCode)
	default:
		return false
	}
}
