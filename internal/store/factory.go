package store

import (
	"context"
	"fmt"

	"notelm/internal/config"
)

// New constructs the store set from configuration. Postgres is the default;
// "memory" keeps everything in process; VECTOR_BACKEND=qdrant replaces the
// pgvector similarity search with a Qdrant collection.
func New(ctx context.Context, cfg config.Config) (Stores, error) {
	if cfg.VectorBackend == "memory" {
		return NewMemory(), nil
	}

	pool, err := OpenPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return Stores{}, fmt.Errorf("connect postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool, cfg.EmbeddingDimensions); err != nil {
		pool.Close()
		return Stores{}, err
	}

	s := NewPostgres(pool)
	if cfg.VectorBackend == "qdrant" {
		idx, err := NewQdrantIndex(cfg.QdrantURL, "notelm_chunks", cfg.EmbeddingDimensions, s.Chunks)
		if err != nil {
			pool.Close()
			return Stores{}, fmt.Errorf("connect qdrant: %w", err)
		}
		s.Vector = idx
	}
	return s, nil
}
