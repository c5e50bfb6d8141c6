package tts

import (
	"context"
	"fmt"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
)

// Synthesizer converts reply text into playable audio
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (*audio.Clip, error)
}

// SynthesisError is returned when the provider answers with a non-200 status
type SynthesisError struct {
	StatusCode int
	Body       string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("TTS API error (status %d): %s", e.StatusCode, e.Body)
}

// TransportError is returned when the request did not complete
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return "TTS request failed: " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
