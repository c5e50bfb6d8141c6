package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/audio"
	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

// CartesiaClient implements Synthesizer using Cartesia's bytes endpoint
type CartesiaClient struct {
	apiKey         string
	apiURL         string
	version        string
	modelID        string
	voiceID        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	logger         zerolog.Logger
}

// CartesiaVoice selects a voice by id
type CartesiaVoice struct {
	Mode string `json:"mode"`
	ID   string `json:"id"`
}

// CartesiaOutputFormat describes the raw audio Cartesia should return
type CartesiaOutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// CartesiaRequest represents the request payload for the Cartesia TTS API
type CartesiaRequest struct {
	ModelID      string               `json:"model_id"`
	Transcript   string               `json:"transcript"`
	Voice        CartesiaVoice        `json:"voice"`
	OutputFormat CartesiaOutputFormat `json:"output_format"`
}

// NewCartesiaClient creates a new Cartesia TTS client.
// A nil httpClient uses a client bounded by the configured call timeout.
func NewCartesiaClient(cfg *config.Config, httpClient *http.Client) *CartesiaClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.CallTimeout()}
	}

	breaker := resilience.NewCircuitBreaker(
		"cartesia_tts",
		cfg.CircuitBreakerMaxFailures,
		cfg.BreakerResetTimeout(),
	).WithFailurePredicate(countsAgainstBreaker)

	return &CartesiaClient{
		apiKey:         cfg.CartesiaAPIKey,
		apiURL:         strings.TrimRight(cfg.CartesiaBaseURL, "/") + "/tts/bytes",
		version:        cfg.CartesiaVersion,
		modelID:        cfg.CartesiaModelID,
		voiceID:        cfg.CartesiaVoiceID,
		httpClient:     httpClient,
		circuitBreaker: breaker,
		logger:         observability.WithComponent("tts").With().Str("provider", "cartesia").Logger(),
	}
}

// Synthesize converts text to 24kHz float32 mono audio
func (c *CartesiaClient) Synthesize(ctx context.Context, text string) (*audio.Clip, error) {
	jsonData, err := json.Marshal(CartesiaRequest{
		ModelID:    c.modelID,
		Transcript: text,
		Voice:      CartesiaVoice{Mode: "id", ID: c.voiceID},
		OutputFormat: CartesiaOutputFormat{
			Container:  "raw",
			Encoding:   "pcm_f32le",
			SampleRate: audio.SynthesisSampleRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var clip *audio.Clip
	err = c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		clip, callErr = c.post(ctx, jsonData)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug().
		Int("samples", len(clip.Samples)).
		Dur("duration", clip.Duration()).
		Msg("Synthesized reply")
	return clip, nil
}

func (c *CartesiaClient) post(ctx context.Context, jsonData []byte) (*audio.Clip, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Cartesia-Version", c.version)
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("reading audio: %w", err)}
	}
	if rem := len(audioData) % 4; rem != 0 {
		c.logger.Warn().Int("trailing_bytes", rem).Msg("Dropping partial trailing sample")
	}

	return &audio.Clip{
		SampleRate: audio.SynthesisSampleRate,
		Samples:    audio.DecodeFloat32LE(audioData),
	}, nil
}

// Healthy reports whether the provider breaker is accepting calls
func (c *CartesiaClient) Healthy(ctx context.Context) (bool, error) {
	return c.circuitBreaker.Healthy(ctx)
}

func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var synthErr *SynthesisError
	if errors.As(err, &synthErr) {
		return resilience.IsRetryableHTTPStatus(synthErr.StatusCode) || synthErr.StatusCode == http.StatusUnauthorized
	}
	return true
}

var _ Synthesizer = (*CartesiaClient)(nil)
