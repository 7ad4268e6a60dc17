package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/domain"
	"notelm/internal/store"
)

type fixedEmbedder struct {
	vec []float32
}

func (f fixedEmbedder) Dimensions() int { return len(f.vec) }

func (f fixedEmbedder) Embed(context.Context, string) ([]float32, error) { return f.vec, nil }

func (f fixedEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func TestRetrieveExactMatchRanksFirst(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	nb := domain.NewNotebook("nb", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))
	doc := domain.NewDocument(nb.ID, "https://x.test/a", "Doc A")
	require.NoError(t, s.Documents.Save(ctx, doc))

	bVec := []float32{0, 1, 0}
	chunks := []domain.Chunk{
		domain.NewChunk(doc.ID, "A", 0, 1, 0, 1).WithEmbedding([]float32{1, 0, 0}),
		domain.NewChunk(doc.ID, "B", 2, 3, 1, 1).WithEmbedding(bVec),
		domain.NewChunk(doc.ID, "C", 4, 5, 2, 1).WithEmbedding([]float32{0.2, 0.9, 0}),
	}
	require.NoError(t, s.Chunks.SaveBatch(ctx, chunks))

	svc := NewService(s.Documents, s.Vector, fixedEmbedder{vec: bVec})
	got, err := svc.Retrieve(ctx, nb.ID, "query equal to B", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "B", got[0].Chunk.Content)
	assert.InDelta(t, 1.0, got[0].Score, 1e-9)
	assert.Equal(t, "C", got[1].Chunk.Content)
	assert.Less(t, got[1].Score, 1.0)
	assert.Equal(t, "Doc A", got[0].Document.Title)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
	}
}

func TestRetrieveEmptyNotebook(t *testing.T) {
	s := store.NewMemory()
	svc := NewService(s.Documents, s.Vector, fixedEmbedder{vec: []float32{1, 0}})

	got, err := svc.Retrieve(context.Background(), "nb-with-nothing", "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRetrieveSkipsUnembeddedChunks(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	nb := domain.NewNotebook("nb", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))
	doc := domain.NewDocument(nb.ID, "https://x.test/a", "")
	require.NoError(t, s.Documents.Save(ctx, doc))
	require.NoError(t, s.Chunks.SaveBatch(ctx, []domain.Chunk{
		domain.NewChunk(doc.ID, "no embedding yet", 0, 16, 0, 3),
	}))

	svc := NewService(s.Documents, s.Vector, fixedEmbedder{vec: []float32{1, 0}})
	got, err := svc.Retrieve(ctx, nb.ID, "q", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}
