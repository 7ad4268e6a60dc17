// Package embed produces fixed-dimension embedding vectors for chunk and
// query text.
package embed

import "context"

// Provider is the embedding contract: order-preserving batch embedding at a
// fixed dimension.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}
