package dialogue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
)

const groqProvider = "groq"

// GroqClient generates replies through Groq's OpenAI-compatible chat completions API
type GroqClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
	policy     *callPolicy
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// NewGroqClient creates a chat completions client.
// A nil httpClient uses a client bounded by the configured call timeout.
func NewGroqClient(cfg *config.Config, httpClient *http.Client) *GroqClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.CallTimeout()}
	}

	logger := observability.WithComponent("dialogue").With().Str("provider", groqProvider).Logger()

	return &GroqClient{
		apiKey:     cfg.GroqAPIKey,
		endpoint:   strings.TrimRight(cfg.GroqBaseURL, "/") + "/chat/completions",
		model:      cfg.DialogueModel,
		httpClient: httpClient,
		policy:     newCallPolicy(cfg, groqProvider, logger),
	}
}

// NextUtterance sends the system prompt plus full history and returns the reply text
func (c *GroqClient) NextUtterance(ctx context.Context, transcript []Message) (string, error) {
	reqBody, err := json.Marshal(chatCompletionsRequest{
		Model:    c.model,
		Messages: buildChatMessages(transcript),
	})
	if err != nil {
		return "", &Error{Provider: groqProvider, Kind: KindDecode, Message: "encoding request", Err: err}
	}

	return c.policy.run(ctx, func(ctx context.Context) (string, error) {
		return c.complete(ctx, reqBody)
	})
}

func (c *GroqClient) complete(ctx context.Context, reqBody []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return "", &Error{Provider: groqProvider, Kind: KindTransport, Message: "creating request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &Error{Provider: groqProvider, Kind: KindTransport, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return "", &Error{
			Provider:   groqProvider,
			Kind:       KindAPI,
			StatusCode: resp.StatusCode,
			Message:    apiMessage(b),
		}
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", &Error{Provider: groqProvider, Kind: KindDecode, Err: err}
	}
	if len(cr.Choices) == 0 {
		return "", &Error{Provider: groqProvider, Kind: KindEmptyResponse, Message: "empty choices"}
	}

	return cr.Choices[0].Message.Content, nil
}

// Healthy reports whether the provider breaker is accepting calls
func (c *GroqClient) Healthy(ctx context.Context) (bool, error) {
	return c.policy.circuitBreaker.Healthy(ctx)
}

func apiMessage(body []byte) string {
	var parsed apiErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Message
	}
	return strings.TrimSpace(string(body))
}

var _ Generator = (*GroqClient)(nil)
