package embed

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"notelm/internal/apperr"
	"notelm/internal/llm"
	"notelm/internal/observability"
)

// OpenAI implements Provider on the OpenAI embeddings API with an explicit
// dimension override.
type OpenAI struct {
	sdk   sdk.Client
	model string
	dims  int
}

func NewOpenAI(apiKey, model string, dimensions int) *OpenAI {
	return &OpenAI{
		sdk:   sdk.NewClient(option.WithAPIKey(apiKey)),
		model: model,
		dims:  dimensions,
	}
}

func (c *OpenAI) Dimensions() int { return c.dims }

func (c *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (c *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Embeddings", c.model)
	defer span.End()
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model:          sdk.EmbeddingModel(c.model),
		Input:          sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions:     sdk.Int(int64(c.dims)),
		EncodingFormat: sdk.EmbeddingNewParamsEncodingFormatFloat,
	})
	dur := time.Since(start)
	if err != nil {
		log.Error().Err(err).Str("model", c.model).Int("inputs", len(texts)).Dur("duration", dur).Msg("embeddings_error")
		if payload, merr := json.Marshal(map[string]any{"model": c.model, "input": texts}); merr == nil {
			log.Debug().RawJSON("request", observability.RedactJSON(payload)).Msg("embeddings_request_payload")
		}
		span.RecordError(err)
		return nil, mapEmbeddingError(err)
	}
	if len(resp.Data) != len(texts) {
		return nil, apperr.ExternalService("embedding count mismatch: got %d for %d inputs", len(resp.Data), len(texts))
	}

	// The API may return rows out of order; Index is authoritative.
	data := make([]sdk.Embedding, len(resp.Data))
	copy(data, resp.Data)
	sort.Slice(data, func(i, j int) bool { return data[i].Index < data[j].Index })

	out := make([][]float32, len(data))
	for i, row := range data {
		vec := make([]float32, len(row.Embedding))
		for j, f := range row.Embedding {
			vec[j] = float32(f)
		}
		out[i] = vec
	}

	llm.RecordTokenAttributes(span, int(resp.Usage.PromptTokens), 0, int(resp.Usage.TotalTokens))
	log.Debug().Str("model", c.model).Int("inputs", len(texts)).Dur("duration", dur).
		Int("prompt_tokens", int(resp.Usage.PromptTokens)).Msg("embeddings_ok")
	return out, nil
}

func mapEmbeddingError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 401, 403:
			return apperr.Wrap(apperr.KindExternalService, err, "embedding authentication failed")
		case 429:
			return apperr.Wrap(apperr.KindExternalService, err, "embedding rate limit exceeded")
		}
	}
	return apperr.Wrap(apperr.KindExternalService, err, "embedding request failed")
}
