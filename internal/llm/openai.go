package llm

import (
	"context"
	"errors"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"notelm/internal/apperr"
	"notelm/internal/observability"
)

// OpenAI implements Provider on the OpenAI Chat Completions API.
type OpenAI struct {
	sdk          sdk.Client
	defaultModel string
}

func NewOpenAI(apiKey, defaultModel string) *OpenAI {
	return &OpenAI{
		sdk:          sdk.NewClient(option.WithAPIKey(apiKey)),
		defaultModel: defaultModel,
	}
}

func (c *OpenAI) Chat(ctx context.Context, model, systemPrompt, userPrompt string) (string, error) {
	if model == "" {
		model = c.defaultModel
	}
	ctx, span := StartRequestSpan(ctx, "OpenAI Chat", model)
	defer span.End()
	log := observability.LoggerWithTrace(ctx)

	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(systemPrompt),
			sdk.UserMessage(userPrompt),
		},
	}
	LogRedactedPrompt(ctx, model, systemPrompt, userPrompt)

	start := time.Now()
	comp, err := c.sdk.Chat.Completions.New(ctx, params)
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", model).Dur("duration", dur).Msg("chat_completion_error")
		span.RecordError(err)
		return "", mapOpenAIError(err, "chat completion")
	}

	RecordTokenAttributes(span, int(comp.Usage.PromptTokens), int(comp.Usage.CompletionTokens), int(comp.Usage.TotalTokens))
	log.Debug().
		Str("model", model).
		Dur("duration", dur).
		Int("prompt_tokens", int(comp.Usage.PromptTokens)).
		Int("completion_tokens", int(comp.Usage.CompletionTokens)).
		Int("total_tokens", int(comp.Usage.TotalTokens)).
		Msg("chat_completion_ok")

	if len(comp.Choices) == 0 {
		return "", apperr.ExternalService("chat completion returned no choices")
	}
	return comp.Choices[0].Message.Content, nil
}

// mapOpenAIError translates SDK failures into the ExternalService kind,
// distinguishing auth and rate-limit rejections in the message.
func mapOpenAIError(err error, op string) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return apperr.Wrap(apperr.KindExternalService, err, "%s: authentication failed", op)
		case 429:
			return apperr.Wrap(apperr.KindExternalService, err, "%s: rate limit exceeded", op)
		}
	}
	return apperr.Wrap(apperr.KindExternalService, err, "%s failed", op)
}
