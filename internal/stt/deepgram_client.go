package stt

import (
	"context"
	"errors"
	"os"
	"strings"

	restv1 "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	restinterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

const deepgramProvider = "deepgram"

// fileTranscriber is the slice of the Deepgram prerecorded API used here
type fileTranscriber interface {
	FromFile(ctx context.Context, file string, req *interfaces.PreRecordedTranscriptionOptions) (*restinterfaces.PreRecordedResponse, error)
}

// DeepgramClient transcribes recordings with Deepgram's prerecorded REST API
type DeepgramClient struct {
	api            fileTranscriber
	options        *interfaces.PreRecordedTranscriptionOptions
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// NewDeepgramClient creates a Deepgram prerecorded transcription client
func NewDeepgramClient(cfg *config.Config) *DeepgramClient {
	c := listenClient.NewREST(cfg.DeepgramAPIKey, &interfaces.ClientOptions{})
	return newDeepgramClient(cfg, restv1.New(c))
}

func newDeepgramClient(cfg *config.Config, api fileTranscriber) *DeepgramClient {
	breaker := resilience.NewCircuitBreaker(
		"deepgram_stt",
		cfg.CircuitBreakerMaxFailures,
		cfg.BreakerResetTimeout(),
	).WithFailurePredicate(countsAgainstBreaker)

	return &DeepgramClient{
		api: api,
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       cfg.DeepgramModel,
			Language:    cfg.DeepgramLanguage,
			Punctuate:   true,
			SmartFormat: true,
		},
		circuitBreaker: breaker,
		logger:         observability.WithComponent("stt").With().Str("provider", deepgramProvider).Logger(),
	}
}

// Transcribe sends the WAV file to Deepgram and returns the top alternative
func (d *DeepgramClient) Transcribe(ctx context.Context, wavPath string) (Transcription, error) {
	if _, err := os.Stat(wavPath); err != nil {
		return Transcription{}, &Error{Provider: deepgramProvider, Kind: KindInput, Message: "reading recording", Err: err}
	}

	var res *restinterfaces.PreRecordedResponse
	err := d.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		res, callErr = d.api.FromFile(ctx, wavPath, d.options)
		if callErr != nil {
			return classifyDeepgramError(ctx, callErr)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Transcription{}, circuitOpenError(deepgramProvider)
	}
	if err != nil {
		return Transcription{}, err
	}

	return d.interpret(res)
}

func (d *DeepgramClient) interpret(res *restinterfaces.PreRecordedResponse) (Transcription, error) {
	if res == nil || res.Results == nil {
		return Transcription{}, &Error{Provider: deepgramProvider, Kind: KindDecode, Message: "response has no results"}
	}

	if len(res.Results.Channels) == 0 || len(res.Results.Channels[0].Alternatives) == 0 {
		d.logger.Debug().Msg("No alternatives in transcription, treating as silence")
		return Transcription{Silent: true}, nil
	}

	text := strings.TrimSpace(res.Results.Channels[0].Alternatives[0].Transcript)
	if text == "" {
		return Transcription{Silent: true}, nil
	}

	return Transcription{Text: text}, nil
}

// classifyDeepgramError maps SDK failures onto transcription error kinds
func classifyDeepgramError(ctx context.Context, err error) error {
	if ctx.Err() != nil || resilience.IsTransientNetworkError(err) {
		return &Error{Provider: deepgramProvider, Kind: KindTransport, Err: err}
	}

	// The SDK folds the HTTP status into the error text
	return &Error{Provider: deepgramProvider, Kind: KindAPI, Message: "request rejected", Err: err}
}

// Healthy reports whether the provider breaker is accepting calls
func (d *DeepgramClient) Healthy(ctx context.Context) (bool, error) {
	return d.circuitBreaker.Healthy(ctx)
}

var _ Transcriber = (*DeepgramClient)(nil)
