package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

const groqProvider = "groq"

// GroqClient transcribes recordings with Groq's Whisper endpoint
type GroqClient struct {
	apiKey            string
	baseURL           string
	model             string
	noSpeechThreshold float64
	httpClient        *http.Client
	circuitBreaker    *resilience.CircuitBreaker
	logger            zerolog.Logger
}

// NewGroqClient creates a Whisper transcription client.
// A nil httpClient uses a client bounded by the configured call timeout.
func NewGroqClient(cfg *config.Config, httpClient *http.Client) *GroqClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.CallTimeout()}
	}

	breaker := resilience.NewCircuitBreaker(
		"groq_stt",
		cfg.CircuitBreakerMaxFailures,
		cfg.BreakerResetTimeout(),
	).WithFailurePredicate(countsAgainstBreaker)

	return &GroqClient{
		apiKey:            cfg.GroqAPIKey,
		baseURL:           strings.TrimRight(cfg.GroqBaseURL, "/"),
		model:             cfg.TranscriptionModel,
		noSpeechThreshold: cfg.NoSpeechThreshold,
		httpClient:        httpClient,
		circuitBreaker:    breaker,
		logger:            observability.WithComponent("stt").With().Str("provider", groqProvider).Logger(),
	}
}

type verboseSegment struct {
	NoSpeechProb float64 `json:"no_speech_prob"`
}

type verboseTranscription struct {
	Text     string           `json:"text"`
	Segments []verboseSegment `json:"segments"`
}

type groqErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Transcribe uploads the WAV file and interprets the verbose response
func (c *GroqClient) Transcribe(ctx context.Context, wavPath string) (Transcription, error) {
	audioData, err := os.ReadFile(wavPath)
	if err != nil {
		return Transcription{}, &Error{Provider: groqProvider, Kind: KindInput, Message: "reading recording", Err: err}
	}

	var result verboseTranscription
	err = c.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
		var callErr error
		result, callErr = c.post(ctx, audioData)
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Transcription{}, circuitOpenError(groqProvider)
	}
	if err != nil {
		return Transcription{}, err
	}

	return c.interpret(result), nil
}

func (c *GroqClient) post(ctx context.Context, audioData []byte) (verboseTranscription, error) {
	var result verboseTranscription

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "creating form file", Err: err}
	}
	if _, err = part.Write(audioData); err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "writing audio", Err: err}
	}
	if err = writer.WriteField("model", c.model); err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "writing model field", Err: err}
	}
	if err = writer.WriteField("response_format", "verbose_json"); err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "writing format field", Err: err}
	}
	if err = writer.Close(); err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "closing writer", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindInput, Message: "creating request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return result, &Error{
			Provider:   groqProvider,
			Kind:       KindAPI,
			StatusCode: resp.StatusCode,
			Message:    apiMessage(respBody),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return result, &Error{Provider: groqProvider, Kind: KindDecode, Err: err}
	}

	return result, nil
}

// interpret applies the silence rules: no segments, a first segment above the
// no-speech threshold, or a blank transcript all mean nothing was said.
func (c *GroqClient) interpret(result verboseTranscription) Transcription {
	if len(result.Segments) == 0 {
		c.logger.Debug().Msg("No segments in transcription, treating as silence")
		return Transcription{Silent: true}
	}

	prob := result.Segments[0].NoSpeechProb
	if prob > c.noSpeechThreshold {
		c.logger.Debug().Float64("no_speech_prob", prob).Msg("First segment is likely silence")
		return Transcription{Silent: true, NoSpeechProb: prob}
	}

	text := strings.TrimSpace(result.Text)
	if text == "" {
		return Transcription{Silent: true, NoSpeechProb: prob}
	}

	return Transcription{Text: text, NoSpeechProb: prob}
}

// Healthy reports whether the provider breaker is accepting calls
func (c *GroqClient) Healthy(ctx context.Context) (bool, error) {
	return c.circuitBreaker.Healthy(ctx)
}

func apiMessage(body []byte) string {
	var parsed groqErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}

var _ Transcriber = (*GroqClient)(nil)
