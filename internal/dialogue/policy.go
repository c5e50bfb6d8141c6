package dialogue

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-calorie-tracker/internal/config"
	"github.com/lexiqai/voice-calorie-tracker/internal/resilience"
)

// callPolicy wraps every provider attempt in the breaker and the retry loop
type callPolicy struct {
	provider       string
	circuitBreaker *resilience.CircuitBreaker
	retry          *resilience.RetryConfig
	logger         zerolog.Logger
}

func newCallPolicy(cfg *config.Config, provider string, logger zerolog.Logger) *callPolicy {
	breaker := resilience.NewCircuitBreaker(
		provider+"_dialogue",
		cfg.CircuitBreakerMaxFailures,
		cfg.BreakerResetTimeout(),
	).WithFailurePredicate(countsAgainstBreaker)

	attempts := cfg.DialogueMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	return &callPolicy{
		provider:       provider,
		circuitBreaker: breaker,
		retry: &resilience.RetryConfig{
			MaxAttempts:       attempts,
			InitialBackoff:    cfg.RetryBackoff(),
			MaxBackoff:        5 * cfg.RetryBackoff(),
			BackoffMultiplier: 2.0,
			Jitter:            true,
		},
		logger: logger,
	}
}

// run executes attempt under the policy and validates the reply
func (p *callPolicy) run(ctx context.Context, attempt func(ctx context.Context) (string, error)) (string, error) {
	var reply string
	tries := 0

	err := resilience.Retry(ctx, func(ctx context.Context) error {
		tries++
		err := p.circuitBreaker.Execute(ctx, func(ctx context.Context) error {
			text, err := attempt(ctx)
			if err != nil {
				return err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				return &Error{Provider: p.provider, Kind: KindEmptyResponse, Message: "no content in reply"}
			}
			reply = text
			return nil
		})
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return &Error{Provider: p.provider, Kind: KindCircuitOpen, Err: err}
		}
		if err != nil && tries < p.retry.MaxAttempts && isRetryable(err) {
			p.logger.Warn().Err(err).Int("attempt", tries).Msg("Dialogue attempt failed, retrying")
		}
		return err
	}, p.retry, isRetryable)

	if err != nil {
		return "", err
	}
	return reply, nil
}

func isRetryable(err error) bool {
	var dErr *Error
	if errors.As(err, &dErr) {
		return dErr.Retryable()
	}
	return false
}

func countsAgainstBreaker(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var dErr *Error
	if errors.As(err, &dErr) {
		// an empty reply is a healthy provider with nothing to say
		return dErr.Kind != KindEmptyResponse && (dErr.Kind != KindAPI || dErr.Retryable() || dErr.StatusCode == 0)
	}
	return true
}
