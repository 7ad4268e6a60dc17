package llm

import (
	"context"
	"encoding/json"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"notelm/internal/observability"
)

// StartRequestSpan starts a tracer span for an LLM request and sets common attributes.
func StartRequestSpan(ctx context.Context, operation, model string) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model))
	return ctx, span
}

// LogRedactedPrompt logs a redacted copy of the request payload at debug
// level. Sensitive values (keys, tokens) are masked before they reach the
// log stream.
func LogRedactedPrompt(ctx context.Context, model, systemPrompt, userPrompt string) {
	log := observability.LoggerWithTrace(ctx)
	payload, err := json.Marshal(map[string]string{
		"model":  model,
		"system": systemPrompt,
		"user":   userPrompt,
	})
	if err != nil {
		return
	}
	log.Debug().RawJSON("prompt", observability.RedactJSON(payload)).Msg("llm_request")
}

// RecordTokenAttributes sets token count attributes on the provided span.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", totalTokens),
	)
}
