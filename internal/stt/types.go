package stt

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

// Transcription is the outcome of transcribing one recording
type Transcription struct {
	// Text is the trimmed transcript; empty when Silent
	Text string

	// Silent is true when the provider judged the recording to contain no speech
	Silent bool

	// NoSpeechProb is the provider's no-speech probability for the first segment, if reported
	NoSpeechProb float64
}

// Transcriber turns a WAV file on disk into text
type Transcriber interface {
	Transcribe(ctx context.Context, wavPath string) (Transcription, error)
}

// ErrorKind classifies transcription failures
type ErrorKind string

const (
	KindInput       ErrorKind = "input"        // the recording could not be read
	KindTransport   ErrorKind = "transport"    // the request never got a response
	KindAPI         ErrorKind = "api"          // the provider answered with an error status
	KindDecode      ErrorKind = "decode"       // the response body was not understood
	KindCircuitOpen ErrorKind = "circuit_open" // the provider breaker rejected the call
)

// Error is returned for every transcription failure
type Error struct {
	Provider   string
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s transcription %s error", e.Provider, e.Kind)
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

// countsAgainstBreaker reports whether err says something about provider health.
// Rejected input and client-side status codes do not.
func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var sttErr *Error
	if !errors.As(err, &sttErr) {
		return true
	}

	switch sttErr.Kind {
	case KindInput:
		return false
	case KindAPI:
		// zero means the provider SDK did not expose a status
		return sttErr.StatusCode == 0 ||
			resilience.IsRetryableHTTPStatus(sttErr.StatusCode) ||
			sttErr.StatusCode == http.StatusUnauthorized
	default:
		return true
	}
}

func circuitOpenError(provider string) *Error {
	return &Error{Provider: provider, Kind: KindCircuitOpen, Err: resilience.ErrCircuitOpen}
}
