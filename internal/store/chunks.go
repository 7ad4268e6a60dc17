package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"notelm/internal/domain"
)

type pgChunkStore struct{ db querier }

const chunkColumns = `id, document_id, content, char_start, char_end, chunk_index, token_count, embedding, created_at`

func (s *pgChunkStore) SaveBatch(ctx context.Context, chunks []domain.Chunk) error {
	for _, c := range chunks {
		var vec any
		if c.Embedding != nil {
			vec = pgvector.NewVector(c.Embedding)
		}
		_, err := s.db.Exec(ctx, `
			INSERT INTO chunks (id, document_id, content, char_start, char_end, chunk_index, token_count, embedding, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				content = EXCLUDED.content,
				char_start = EXCLUDED.char_start,
				char_end = EXCLUDED.char_end,
				chunk_index = EXCLUDED.chunk_index,
				token_count = EXCLUDED.token_count,
				embedding = EXCLUDED.embedding`,
			c.ID, c.DocumentID, c.Content, c.CharStart, c.CharEnd, c.ChunkIndex, c.TokenCount, vec, c.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *pgChunkStore) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func scanChunk(row pgx.Row) (domain.Chunk, error) {
	var c domain.Chunk
	var vec *pgvector.Vector
	err := row.Scan(&c.ID, &c.DocumentID, &c.Content, &c.CharStart, &c.CharEnd,
		&c.ChunkIndex, &c.TokenCount, &vec, &c.CreatedAt)
	if err != nil {
		return domain.Chunk{}, err
	}
	if vec != nil {
		c.Embedding = vec.Slice()
	}
	return c, nil
}

func (s *pgChunkStore) collect(ctx context.Context, query string, args ...any) ([]domain.Chunk, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *pgChunkStore) ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error) {
	return s.collect(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE document_id = $1 ORDER BY chunk_index`, documentID)
}

func (s *pgChunkStore) ListByNotebook(ctx context.Context, notebookID string) ([]domain.Chunk, error) {
	return s.collect(ctx, `
		SELECT c.id, c.document_id, c.content, c.char_start, c.char_end, c.chunk_index, c.token_count, c.embedding, c.created_at
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.notebook_id = $1
		ORDER BY c.document_id, c.chunk_index`, notebookID)
}

func (s *pgChunkStore) GetMany(ctx context.Context, ids []string) ([]domain.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.collect(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE id = ANY($1)`, ids)
}

// pgVectorIndex answers similarity queries straight off the chunks table.
// Embeddings are written by SaveBatch, so the mirror methods are no-ops.
type pgVectorIndex struct{ db querier }

func (v *pgVectorIndex) UpsertChunks(context.Context, string, []domain.Chunk) error { return nil }

func (v *pgVectorIndex) DeleteByDocument(context.Context, string) error { return nil }

func (v *pgVectorIndex) Search(ctx context.Context, notebookID string, embedding []float32, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := v.db.Query(ctx, `
		SELECT c.id, c.document_id, c.content, c.char_start, c.char_end, c.chunk_index, c.token_count, c.embedding, c.created_at,
		       c.embedding <=> $2 AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.notebook_id = $1 AND c.embedding IS NOT NULL
		ORDER BY distance
		LIMIT $3`,
		notebookID, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var c domain.Chunk
		var vec *pgvector.Vector
		var distance float64
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.CharStart, &c.CharEnd,
			&c.ChunkIndex, &c.TokenCount, &vec, &c.CreatedAt, &distance); err != nil {
			return nil, err
		}
		if vec != nil {
			c.Embedding = vec.Slice()
		}
		out = append(out, ScoredChunk{Chunk: c, Score: 1 - distance})
	}
	return out, rows.Err()
}
