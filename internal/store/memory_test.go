package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

func TestMemoryNotebookCascade(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	nb := domain.NewNotebook("research", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))

	doc := domain.NewDocument(nb.ID, "https://x.test/a", "")
	require.NoError(t, s.Documents.Save(ctx, doc))
	require.NoError(t, s.Chunks.SaveBatch(ctx, []domain.Chunk{
		domain.NewChunk(doc.ID, "hello", 0, 5, 0, 1),
	}))

	require.NoError(t, s.Notebooks.Delete(ctx, nb.ID))

	_, err := s.Documents.Get(ctx, doc.ID)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
	chunks, err := s.Chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMemoryVectorSearchOrdering(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	nb := domain.NewNotebook("nb", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))
	doc := domain.NewDocument(nb.ID, "https://x.test/a", "")
	require.NoError(t, s.Documents.Save(ctx, doc))

	a := domain.NewChunk(doc.ID, "a", 0, 1, 0, 1).WithEmbedding([]float32{1, 0, 0})
	b := domain.NewChunk(doc.ID, "b", 2, 3, 1, 1).WithEmbedding([]float32{0, 1, 0})
	c := domain.NewChunk(doc.ID, "c", 4, 5, 2, 1).WithEmbedding([]float32{0.9, 0.1, 0})
	noEmb := domain.NewChunk(doc.ID, "d", 6, 7, 3, 1)
	require.NoError(t, s.Chunks.SaveBatch(ctx, []domain.Chunk{a, b, c, noEmb}))

	hits, err := s.Vector.Search(ctx, nb.ID, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, a.ID, hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, c.ID, hits[1].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestMemoryVectorSearchScopedToNotebook(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	nb1 := domain.NewNotebook("one", "")
	nb2 := domain.NewNotebook("two", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb1))
	require.NoError(t, s.Notebooks.Save(ctx, nb2))

	d1 := domain.NewDocument(nb1.ID, "https://x.test/1", "")
	d2 := domain.NewDocument(nb2.ID, "https://x.test/2", "")
	require.NoError(t, s.Documents.Save(ctx, d1))
	require.NoError(t, s.Documents.Save(ctx, d2))

	require.NoError(t, s.Chunks.SaveBatch(ctx, []domain.Chunk{
		domain.NewChunk(d1.ID, "in scope", 0, 8, 0, 2).WithEmbedding([]float32{1, 0}),
		domain.NewChunk(d2.ID, "other", 0, 5, 0, 1).WithEmbedding([]float32{1, 0}),
	}))

	hits, err := s.Vector.Search(ctx, nb1.ID, []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "in scope", hits[0].Chunk.Content)
}

func TestMemoryDeleteByDocumentThenSaveBatch(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	doc := domain.NewDocument("nb", "https://x.test/a", "")
	require.NoError(t, s.Documents.Save(ctx, doc))

	old := []domain.Chunk{
		domain.NewChunk(doc.ID, "old one", 0, 7, 0, 2),
		domain.NewChunk(doc.ID, "old two", 8, 15, 1, 2),
	}
	require.NoError(t, s.Chunks.SaveBatch(ctx, old))

	err := s.Tx.WithinTx(ctx, func(ctx context.Context, tx TxStores) error {
		if _, err := tx.Chunks.DeleteByDocument(ctx, doc.ID); err != nil {
			return err
		}
		return tx.Chunks.SaveBatch(ctx, []domain.Chunk{
			domain.NewChunk(doc.ID, "new", 0, 3, 0, 1),
		})
	})
	require.NoError(t, err)

	got, err := s.Chunks.ListByDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].Content)
}

func TestMemoryDiscoveredUpsertUniqueOnURL(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	du := domain.NewDiscoveredUrl("https://x.test/p", 1)
	require.NoError(t, s.Crawls.SaveDiscovered(ctx, "job1", du))
	require.NoError(t, s.Crawls.SaveDiscovered(ctx, "job1", du.MarkIngested("doc1")))

	got, err := s.Crawls.ListDiscovered(ctx, "job1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.DiscoveredIngested, got[0].Status)
}

func TestMemoryRunResultsAppend(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	run := domain.NewEvaluationRun("ds1", 5, domain.EvaluationRetrievalOnly)
	require.NoError(t, s.Evaluations.SaveRun(ctx, run))
	require.NoError(t, s.Evaluations.AppendResult(ctx, run.ID, domain.NewTestCaseResult("tc1", nil, nil)))
	require.NoError(t, s.Evaluations.AppendResult(ctx, run.ID, domain.NewTestCaseResult("tc2", nil, nil)))

	got, err := s.Evaluations.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got.Results, 2)
}
