// Package retrieve answers top-k similarity queries over a notebook's
// chunks, joined to their source documents.
package retrieve

import (
	"context"

	"notelm/internal/domain"
	"notelm/internal/embed"
	"notelm/internal/observability"
	"notelm/internal/store"
)

// RetrievedChunk is one hit with its document context. Score is
// 1 − cosine distance; higher is better.
type RetrievedChunk struct {
	Chunk    domain.Chunk
	Document domain.Document
	Score    float64
}

type Service struct {
	docs     store.DocumentStore
	vectors  store.VectorIndex
	embedder embed.Provider
}

func NewService(docs store.DocumentStore, vectors store.VectorIndex, embedder embed.Provider) *Service {
	return &Service{docs: docs, vectors: vectors, embedder: embedder}
}

// Retrieve embeds the query once and returns up to maxChunks hits ordered by
// non-increasing score. An empty notebook yields an empty result.
func (s *Service) Retrieve(ctx context.Context, notebookID, query string, maxChunks int) ([]RetrievedChunk, error) {
	if maxChunks <= 0 {
		maxChunks = 5
	}

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	hits, err := s.vectors.Search(ctx, notebookID, queryVec, maxChunks)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	// One document lookup per distinct id.
	docIDs := make(map[string]domain.Document)
	for _, hit := range hits {
		docIDs[hit.Chunk.DocumentID] = domain.Document{}
	}
	for id := range docIDs {
		doc, err := s.docs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		docIDs[id] = doc
	}

	out := make([]RetrievedChunk, 0, len(hits))
	for _, hit := range hits {
		out = append(out, RetrievedChunk{
			Chunk:    hit.Chunk,
			Document: docIDs[hit.Chunk.DocumentID],
			Score:    hit.Score,
		})
	}

	observability.LoggerWithTrace(ctx).Debug().
		Str("notebook_id", notebookID).
		Int("hits", len(out)).
		Msg("retrieve_ok")
	return out, nil
}
