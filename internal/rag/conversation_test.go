package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
	"notelm/internal/domain"
	"notelm/internal/retrieve"
	"notelm/internal/store"
)

type staticEmbedder struct{ vec []float32 }

func (s staticEmbedder) Dimensions() int { return len(s.vec) }

func (s staticEmbedder) Embed(context.Context, string) ([]float32, error) { return s.vec, nil }

func (s staticEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func TestConversationAskPersistsTurnsAndFeedsHistory(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()

	nb := domain.NewNotebook("nb", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))
	doc := domain.NewDocument(nb.ID, "https://x.test/a", "Doc")
	require.NoError(t, s.Documents.Save(ctx, doc))
	require.NoError(t, s.Chunks.SaveBatch(ctx, []domain.Chunk{
		domain.NewChunk(doc.ID, "widgets are blue", 0, 16, 0, 3).WithEmbedding([]float32{1, 0}),
	}))

	conv := domain.NewConversation(nb.ID, "widgets")
	require.NoError(t, s.Conversations.SaveConversation(ctx, conv))
	require.NoError(t, s.Conversations.SaveMessage(ctx, domain.NewMessage(conv.ID, "user", "earlier question")))
	require.NoError(t, s.Conversations.SaveMessage(ctx, domain.NewMessage(conv.ID, "assistant", "earlier answer")))

	provider := &scriptedLLM{reply: "Widgets are blue [1]."}
	retrieval := retrieve.NewService(s.Documents, s.Vector, staticEmbedder{vec: []float32{1, 0}})
	ca := NewConversationAnswerer(NewAnswerer(provider, "m"), s.Conversations, retrieval)

	ans, err := ca.Ask(ctx, conv.ID, "What color are widgets?", 5)
	require.NoError(t, err)
	assert.Equal(t, "Widgets are blue [1].", ans.Text)
	require.Len(t, ans.Citations, 1)

	// History reached the prompt.
	assert.Contains(t, provider.lastUser, "PREVIOUS CONVERSATION:")
	assert.Contains(t, provider.lastUser, "USER: earlier question")

	// Both turns appended.
	msgs, err := s.Conversations.ListMessages(ctx, conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 4)
	assert.Equal(t, "assistant", msgs[3].Role)
	assert.Equal(t, "Widgets are blue [1].", msgs[3].Content)
}

func TestConversationAskUnknownConversation(t *testing.T) {
	s := store.NewMemory()
	retrieval := retrieve.NewService(s.Documents, s.Vector, staticEmbedder{vec: []float32{1, 0}})
	ca := NewConversationAnswerer(NewAnswerer(&scriptedLLM{}, "m"), s.Conversations, retrieval)

	_, err := ca.Ask(context.Background(), "missing", "q", 5)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindNotFound))
}
