package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// EnsureSchema creates every table and index when missing. The DDL is
// idempotent so startup can always run it.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, embeddingDims int) error {
	if embeddingDims <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", embeddingDims)
	}

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS notebooks (
			id CHAR(32) PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS documents (
			id CHAR(32) PRIMARY KEY,
			notebook_id CHAR(32) NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			title TEXT,
			status TEXT NOT NULL,
			error_message TEXT,
			content_hash TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			UNIQUE (notebook_id, url)
		)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS chunks (
			id CHAR(32) PRIMARY KEY,
			document_id CHAR(32) NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			char_start INTEGER NOT NULL,
			char_end INTEGER NOT NULL,
			chunk_index INTEGER NOT NULL,
			token_count INTEGER NOT NULL,
			embedding vector(%d),
			created_at TIMESTAMPTZ NOT NULL
		)`, embeddingDims),
		`CREATE INDEX IF NOT EXISTS chunks_document_idx ON chunks (document_id, chunk_index)`,
		`CREATE INDEX IF NOT EXISTS chunks_embedding_idx
			ON chunks USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,

		`CREATE TABLE IF NOT EXISTS conversations (
			id CHAR(32) PRIMARY KEY,
			notebook_id CHAR(32) NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
			title TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS messages (
			id CHAR(32) PRIMARY KEY,
			conversation_id CHAR(32) NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS messages_conversation_idx ON messages (conversation_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS crawl_jobs (
			id CHAR(32) PRIMARY KEY,
			notebook_id CHAR(32) NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
			seed_url TEXT NOT NULL,
			domain TEXT NOT NULL,
			max_depth INTEGER NOT NULL,
			max_pages INTEGER NOT NULL,
			url_include_pattern TEXT,
			url_exclude_pattern TEXT,
			status TEXT NOT NULL,
			total_discovered INTEGER NOT NULL DEFAULT 0,
			total_ingested INTEGER NOT NULL DEFAULT 0,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS crawl_discovered_urls (
			crawl_job_id CHAR(32) NOT NULL REFERENCES crawl_jobs(id) ON DELETE CASCADE,
			url TEXT NOT NULL,
			depth INTEGER NOT NULL,
			status TEXT NOT NULL,
			document_id CHAR(32) REFERENCES documents(id) ON DELETE SET NULL,
			created_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (crawl_job_id, url)
		)`,

		`CREATE TABLE IF NOT EXISTS evaluation_datasets (
			id CHAR(32) PRIMARY KEY,
			notebook_id CHAR(32) NOT NULL REFERENCES notebooks(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			questions_per_chunk INTEGER NOT NULL,
			max_chunks_sample INTEGER NOT NULL,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS evaluation_test_cases (
			id CHAR(32) PRIMARY KEY,
			dataset_id CHAR(32) NOT NULL REFERENCES evaluation_datasets(id) ON DELETE CASCADE,
			question TEXT NOT NULL,
			ground_truth_chunk_ids TEXT[] NOT NULL,
			source_chunk_id CHAR(32) NOT NULL,
			difficulty TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS evaluation_test_cases_dataset_idx ON evaluation_test_cases (dataset_id)`,

		`CREATE TABLE IF NOT EXISTS evaluation_runs (
			id CHAR(32) PRIMARY KEY,
			dataset_id CHAR(32) NOT NULL REFERENCES evaluation_datasets(id) ON DELETE CASCADE,
			status TEXT NOT NULL,
			k INTEGER NOT NULL,
			evaluation_type TEXT NOT NULL,
			precision_at_k DOUBLE PRECISION,
			recall_at_k DOUBLE PRECISION,
			hit_rate_at_k DOUBLE PRECISION,
			mrr DOUBLE PRECISION,
			ndcg_at_k DOUBLE PRECISION,
			map_at_k DOUBLE PRECISION,
			faithfulness DOUBLE PRECISION,
			answer_relevancy DOUBLE PRECISION,
			citation_precision DOUBLE PRECISION,
			citation_recall DOUBLE PRECISION,
			hallucination_rate DOUBLE PRECISION,
			error_message TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS evaluation_test_case_results (
			id CHAR(32) PRIMARY KEY,
			run_id CHAR(32) NOT NULL REFERENCES evaluation_runs(id) ON DELETE CASCADE,
			test_case_id CHAR(32) NOT NULL REFERENCES evaluation_test_cases(id) ON DELETE CASCADE,
			retrieved_chunk_ids TEXT[] NOT NULL,
			retrieved_scores DOUBLE PRECISION[] NOT NULL,
			precision DOUBLE PRECISION NOT NULL,
			recall DOUBLE PRECISION NOT NULL,
			hit BOOLEAN NOT NULL,
			reciprocal_rank DOUBLE PRECISION NOT NULL,
			ndcg DOUBLE PRECISION NOT NULL,
			map_score DOUBLE PRECISION NOT NULL,
			generated_answer TEXT,
			faithfulness DOUBLE PRECISION,
			answer_relevancy DOUBLE PRECISION,
			cited_chunk_ids TEXT[],
			citation_precision DOUBLE PRECISION,
			citation_recall DOUBLE PRECISION,
			claims JSONB,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS evaluation_results_run_idx ON evaluation_test_case_results (run_id)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	log.Debug().Msg("schema_ensured")
	return nil
}
