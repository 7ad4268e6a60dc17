package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

func TestParseScoreClampsAndTolerates(t *testing.T) {
	assert.Equal(t, 0.7, parseScore(`{"score": 0.7, "reasoning": "ok"}`))
	assert.Equal(t, 0.7, parseScore("```json\n{\"score\": 0.7}\n```"))
	assert.Equal(t, 1.0, parseScore(`{"score": 3.5}`))
	assert.Equal(t, 0.0, parseScore(`{"score": -2}`))
	assert.Equal(t, 0.0, parseScore("the model rambled instead of JSON"))
	assert.Equal(t, 0.0, parseScore(`{}`))
}

func TestJudgeScoresNeverPropagateErrors(t *testing.T) {
	j := NewJudge(&scriptedProvider{err: apperr.ExternalService("down")}, "m")
	ctx := context.Background()
	chunks := []domain.Chunk{domain.NewChunk("d", "ctx", 0, 3, 0, 1)}

	assert.Zero(t, j.ScoreFaithfulness(ctx, "q", "a", chunks))
	assert.Zero(t, j.ScoreAnswerRelevancy(ctx, "q", "a"))
	assert.Zero(t, j.ScoreCitationSupport(ctx, "claim", "content"))
	assert.Zero(t, j.ScoreAnswerCompleteness(ctx, "q", "a", chunks))
	assert.Nil(t, j.AnalyzeHallucinations(ctx, "q", "a", chunks))
}

func TestAnalyzeHallucinations(t *testing.T) {
	reply := `{"claims": [
		{"claim_text": "X is true", "verdict": "supported", "supporting_chunks": [1], "reasoning": "chunk 1"},
		{"claim_text": "Y is huge", "verdict": "fabricated", "supporting_chunks": [], "reasoning": "nowhere"},
		{"claim_text": "Z shrank", "verdict": "contradicted", "supporting_chunks": [2], "reasoning": "opposite"}
	]}`
	j := NewJudge(&scriptedProvider{reply: reply}, "m")

	claims := j.AnalyzeHallucinations(context.Background(), "q", "a", nil)
	require.Len(t, claims, 3)
	assert.False(t, claims[0].Hallucinated())
	assert.True(t, claims[1].Hallucinated())
	assert.True(t, claims[2].Hallucinated())
	assert.Equal(t, []int{1}, claims[0].SupportingChunks)
}

func TestNumberedContext(t *testing.T) {
	chunks := []domain.Chunk{
		domain.NewChunk("d", "first", 0, 5, 0, 1),
		domain.NewChunk("d", "second", 6, 12, 1, 1),
	}
	got := numberedContext(chunks)
	assert.Contains(t, got, "[1] first")
	assert.Contains(t, got, "[2] second")
}
