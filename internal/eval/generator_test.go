package eval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

type scriptedProvider struct {
	reply string
	err   error
	calls int
}

func (p *scriptedProvider) Chat(_ context.Context, _, _, _ string) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func TestParseQuestionsObjectForm(t *testing.T) {
	out := parseQuestions("```json\n" + `{"questions": [
		{"text": "What powers widgets?", "difficulty": "factual"},
		{"text": "Why do flanges matter?", "difficulty": "bogus"},
		{"text": "", "difficulty": "factual"}
	]}` + "\n```")

	require.Len(t, out, 2)
	assert.Equal(t, domain.DifficultyFactual, out[0].Difficulty)
	assert.Equal(t, domain.Difficulty(""), out[1].Difficulty)
}

func TestParseQuestionsPlainStringForm(t *testing.T) {
	out := parseQuestions(`{"questions": ["What is a sprocket?", "How are jigs made?"]}`)
	require.Len(t, out, 2)
	assert.Equal(t, "What is a sprocket?", out[0].Text)
	assert.Equal(t, domain.Difficulty(""), out[0].Difficulty)
}

func TestParseQuestionsInvalidJSON(t *testing.T) {
	assert.Nil(t, parseQuestions("no json here"))
	assert.Empty(t, parseQuestions(`{"questions": []}`))
}

func TestSampleChunksSeededAndBounded(t *testing.T) {
	chunks := make([]domain.Chunk, 20)
	for i := range chunks {
		chunks[i] = domain.NewChunk("doc", "c", 0, 1, i, 1)
	}

	g1 := NewGenerator(&scriptedProvider{}, "m", 42)
	g2 := NewGenerator(&scriptedProvider{}, "m", 42)

	s1 := g1.SampleChunks(chunks, 5)
	s2 := g2.SampleChunks(chunks, 5)
	require.Len(t, s1, 5)
	for i := range s1 {
		assert.Equal(t, s1[i].ID, s2[i].ID, "same seed must sample identically")
	}

	all := g1.SampleChunks(chunks, 50)
	assert.Len(t, all, 20)
}

func TestGenerateTestCasesBuildsGroundTruth(t *testing.T) {
	provider := &scriptedProvider{reply: `{"questions": [{"text": "Q1?", "difficulty": "analytical"}, {"text": "Q2?"}]}`}
	g := NewGenerator(provider, "m", 1)

	chunk := domain.NewChunk("doc", "content", 0, 7, 0, 2)
	cases := g.GenerateTestCases(context.Background(), []domain.Chunk{chunk}, 2, 10)

	require.Len(t, cases, 2)
	for _, tc := range cases {
		assert.Equal(t, []string{chunk.ID}, tc.GroundTruthChunkIDs)
		assert.Equal(t, chunk.ID, tc.SourceChunkID)
	}
	assert.Equal(t, domain.DifficultyAnalytical, cases[0].Difficulty)
}

func TestGenerateQuestionsSwallowsProviderErrors(t *testing.T) {
	provider := &scriptedProvider{err: apperr.ExternalService("model down")}
	g := NewGenerator(provider, "m", 1)
	out := g.GenerateQuestions(context.Background(), domain.NewChunk("d", "c", 0, 1, 0, 1), 2)
	assert.Nil(t, out)
}
