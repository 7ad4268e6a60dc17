// Package store persists the domain entities. The default backend is
// Postgres with the pgvector extension; chunk similarity search can
// alternatively run against Qdrant, and an in-memory backend backs tests.
package store

import (
	"context"

	"notelm/internal/domain"
)

type NotebookStore interface {
	Save(ctx context.Context, n domain.Notebook) error
	Get(ctx context.Context, id string) (domain.Notebook, error)
	List(ctx context.Context) ([]domain.Notebook, error)
	Delete(ctx context.Context, id string) error
}

type DocumentStore interface {
	Save(ctx context.Context, d domain.Document) error
	Get(ctx context.Context, id string) (domain.Document, error)
	FindByNotebookAndURL(ctx context.Context, notebookID, url string) (domain.Document, bool, error)
	ListByNotebook(ctx context.Context, notebookID string) ([]domain.Document, error)
	ListByStatus(ctx context.Context, notebookID string, status domain.DocumentStatus) ([]domain.Document, error)
	Delete(ctx context.Context, id string) error
}

type ChunkStore interface {
	SaveBatch(ctx context.Context, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	ListByDocument(ctx context.Context, documentID string) ([]domain.Chunk, error)
	ListByNotebook(ctx context.Context, notebookID string) ([]domain.Chunk, error)
	GetMany(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

type CrawlStore interface {
	SaveJob(ctx context.Context, j domain.CrawlJob) error
	GetJob(ctx context.Context, id string) (domain.CrawlJob, error)
	ListJobsByNotebook(ctx context.Context, notebookID string) ([]domain.CrawlJob, error)
	SaveDiscovered(ctx context.Context, crawlJobID string, du domain.DiscoveredUrl) error
	ListDiscovered(ctx context.Context, crawlJobID string) ([]domain.DiscoveredUrl, error)
}

type ConversationStore interface {
	SaveConversation(ctx context.Context, c domain.Conversation) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	SaveMessage(ctx context.Context, m domain.Message) error
	// ListMessages returns the most recent limit messages in chronological order.
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

type EvaluationStore interface {
	SaveDataset(ctx context.Context, ds domain.EvaluationDataset) error
	SaveDatasetWithTestCases(ctx context.Context, ds domain.EvaluationDataset) error
	GetDataset(ctx context.Context, id string) (domain.EvaluationDataset, error)
	ListDatasetsByNotebook(ctx context.Context, notebookID string) ([]domain.EvaluationDataset, error)

	SaveRun(ctx context.Context, run domain.EvaluationRun) error
	// AppendResult persists one test case result immediately so partial
	// progress survives a mid-run failure.
	AppendResult(ctx context.Context, runID string, res domain.TestCaseResult) error
	GetRun(ctx context.Context, id string) (domain.EvaluationRun, error)
	ListRunsByDataset(ctx context.Context, datasetID string) ([]domain.EvaluationRun, error)
}

// ScoredChunk is a similarity hit: higher score is better (1 − cosine distance).
type ScoredChunk struct {
	Chunk domain.Chunk
	Score float64
}

// VectorIndex answers cosine top-k queries over a notebook's chunks and
// mirrors chunk embeddings for backends that keep them outside the chunks
// table. The pgvector backend colocates embeddings with chunk rows, so its
// write methods are no-ops.
type VectorIndex interface {
	UpsertChunks(ctx context.Context, notebookID string, chunks []domain.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, notebookID string, embedding []float32, limit int) ([]ScoredChunk, error)
}

// TxStores are the repositories bound to one transaction.
type TxStores struct {
	Documents DocumentStore
	Chunks    ChunkStore
}

// Transactor runs fn inside a single transaction: commit on nil, rollback on
// error. The chunk replacement and document completion of the ingestion
// pipeline share one transaction through this seam.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s TxStores) error) error
}

// Stores bundles every repository behind one backend.
type Stores struct {
	Notebooks     NotebookStore
	Documents     DocumentStore
	Chunks        ChunkStore
	Crawls        CrawlStore
	Conversations ConversationStore
	Evaluations   EvaluationStore
	Vector        VectorIndex
	Tx            Transactor
}
