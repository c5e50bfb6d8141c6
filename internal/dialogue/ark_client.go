package dialogue

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/observability"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

const arkProvider = "ark"

// messageGenerator is the part of an eino chat model used here
type messageGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ArkClient generates replies with a Volcengine Ark model through eino
type ArkClient struct {
	chatModel messageGenerator
	policy    *callPolicy
}

// NewArkClient builds the Ark chat model from configuration
func NewArkClient(ctx context.Context, cfg *config.Config) (*ArkClient, error) {
	timeout := cfg.CallTimeout()
	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL: cfg.ArkBaseURL,
		Region:  cfg.ArkRegion,
		APIKey:  cfg.ArkAPIKey,
		Model:   cfg.ArkModel,
		Timeout: &timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ark chat model: %w", err)
	}

	return newArkClient(cfg, chatModel), nil
}

func newArkClient(cfg *config.Config, chatModel messageGenerator) *ArkClient {
	logger := observability.WithComponent("dialogue").With().Str("provider", arkProvider).Logger()
	return &ArkClient{
		chatModel: chatModel,
		policy:    newCallPolicy(cfg, arkProvider, logger),
	}
}

// NextUtterance sends the system prompt plus full history and returns the reply text
func (a *ArkClient) NextUtterance(ctx context.Context, transcript []Message) (string, error) {
	messages := toSchemaMessages(transcript)

	return a.policy.run(ctx, func(ctx context.Context) (string, error) {
		resp, err := a.chatModel.Generate(ctx, messages)
		if err != nil {
			kind := KindAPI
			if ctx.Err() != nil || resilience.IsTransientNetworkError(err) {
				kind = KindTransport
			}
			return "", &Error{Provider: arkProvider, Kind: kind, Err: err}
		}
		if resp == nil {
			return "", &Error{Provider: arkProvider, Kind: KindEmptyResponse, Message: "nil message"}
		}
		return resp.Content, nil
	})
}

func toSchemaMessages(transcript []Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(transcript)+1)
	messages = append(messages, schema.SystemMessage(SystemPrompt))
	for _, m := range transcript {
		switch m.Role {
		case RoleAssistant:
			messages = append(messages, schema.AssistantMessage(m.Text, nil))
		default:
			messages = append(messages, schema.UserMessage(m.Text))
		}
	}
	return messages
}

// Healthy reports whether the provider breaker is accepting calls
func (a *ArkClient) Healthy(ctx context.Context) (bool, error) {
	return a.policy.circuitBreaker.Healthy(ctx)
}

var _ Generator = (*ArkClient)(nil)
