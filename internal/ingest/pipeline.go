// Package ingest drives the per-document pipeline:
// extract → chunk → embed → replace chunks → complete.
package ingest

import (
	"context"
	"fmt"

	"notelm/internal/domain"
	"notelm/internal/embed"
	"notelm/internal/extract"
	"notelm/internal/observability"
	"notelm/internal/store"
	"notelm/internal/textsplit"
)

const defaultEmbedBatchSize = 10

// Pipeline processes one document to a terminal state. Any failure between
// the PROCESSING transition and the final commit marks the document FAILED;
// readers only ever see the prior chunk set or the new complete one.
type Pipeline struct {
	docs      store.DocumentStore
	tx        store.Transactor
	vectors   store.VectorIndex
	extractor extract.Extractor
	chunker   *textsplit.Chunker
	embedder  embed.Provider
	batchSize int
}

func NewPipeline(
	docs store.DocumentStore,
	tx store.Transactor,
	vectors store.VectorIndex,
	extractor extract.Extractor,
	chunker *textsplit.Chunker,
	embedder embed.Provider,
	batchSize int,
) *Pipeline {
	if batchSize <= 0 {
		batchSize = defaultEmbedBatchSize
	}
	return &Pipeline{
		docs:      docs,
		tx:        tx,
		vectors:   vectors,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// Process runs the document to COMPLETED or FAILED and returns the final
// state. It never returns an error for pipeline failures; those land on the
// document itself.
func (p *Pipeline) Process(ctx context.Context, doc domain.Document) domain.Document {
	log := observability.LoggerWithTrace(ctx)

	doc, err := doc.MarkProcessing()
	if err != nil {
		log.Warn().Str("document_id", doc.ID).Err(err).Msg("ingest_not_processable")
		return doc
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		log.Error().Str("document_id", doc.ID).Err(err).Msg("ingest_save_failed")
		return doc
	}

	done, err := p.run(ctx, doc)
	if err != nil {
		log.Error().Str("document_id", doc.ID).Str("url", doc.URL).Err(err).Msg("ingest_failed")
		failed, terr := doc.MarkFailed(err.Error())
		if terr != nil {
			return doc
		}
		if serr := p.docs.Save(ctx, failed); serr != nil {
			log.Error().Str("document_id", doc.ID).Err(serr).Msg("ingest_save_failed")
		}
		return failed
	}
	return done
}

func (p *Pipeline) run(ctx context.Context, doc domain.Document) (domain.Document, error) {
	log := observability.LoggerWithTrace(ctx)

	extracted, err := p.extractor.Extract(ctx, doc.URL)
	if err != nil {
		return doc, err
	}
	log.Info().Str("document_id", doc.ID).Str("url", doc.URL).Int("words", extracted.WordCount).Msg("ingest_extracted")

	pieces := p.chunker.Chunk(extracted.Content)
	chunks := make([]domain.Chunk, 0, len(pieces))
	for _, piece := range pieces {
		chunks = append(chunks, domain.NewChunk(
			doc.ID, piece.Content, piece.CharStart, piece.CharEnd, piece.ChunkIndex, piece.TokenCount))
	}

	embedded, err := p.embedChunks(ctx, chunks)
	if err != nil {
		return doc, err
	}

	completed, err := doc.MarkCompleted(extracted.Title, extracted.ContentHash)
	if err != nil {
		return doc, err
	}

	// Delete-then-insert and the COMPLETED update share one transaction, so
	// reprocessing swaps the chunk set atomically.
	err = p.tx.WithinTx(ctx, func(ctx context.Context, s store.TxStores) error {
		if _, err := s.Chunks.DeleteByDocument(ctx, doc.ID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		if err := s.Chunks.SaveBatch(ctx, embedded); err != nil {
			return fmt.Errorf("save chunks: %w", err)
		}
		return s.Documents.Save(ctx, completed)
	})
	if err != nil {
		return doc, err
	}

	if err := p.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		log.Warn().Str("document_id", doc.ID).Err(err).Msg("vector_index_delete_failed")
	}
	if err := p.vectors.UpsertChunks(ctx, doc.NotebookID, embedded); err != nil {
		log.Warn().Str("document_id", doc.ID).Err(err).Msg("vector_index_upsert_failed")
	}

	log.Info().Str("document_id", doc.ID).Int("chunks", len(embedded)).Msg("ingest_completed")
	return completed, nil
}

func (p *Pipeline) embedChunks(ctx context.Context, chunks []domain.Chunk) ([]domain.Chunk, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	out := make([]domain.Chunk, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Content
		}
		vecs, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, c := range batch {
			out = append(out, c.WithEmbedding(vecs[i]))
		}
	}
	return out, nil
}
