package eval

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
	"notelm/internal/domain"
	"notelm/internal/rag"
	"notelm/internal/retrieve"
	"notelm/internal/store"
)

// routedProvider answers by system-prompt role so one fake can serve the
// answerer, the judge, and the generator at once.
type routedProvider struct {
	failAfter int // fail the nth call onward; 0 disables
	calls     int
}

func (p *routedProvider) Chat(_ context.Context, _, systemPrompt, _ string) (string, error) {
	p.calls++
	if p.failAfter > 0 && p.calls >= p.failAfter {
		return "", apperr.ExternalService("provider down")
	}
	switch {
	case strings.Contains(systemPrompt, "research assistant"):
		return "The ground truth fact [2].", nil
	case strings.Contains(systemPrompt, "hallucination analysis"):
		return `{"claims": [
			{"claim_text": "fact", "verdict": "supported", "supporting_chunks": [2], "reasoning": "ok"},
			{"claim_text": "extra", "verdict": "fabricated", "supporting_chunks": [], "reasoning": "none"}
		]}`, nil
	case strings.Contains(systemPrompt, "test data generator"):
		return `{"questions": [{"text": "What is the fact?", "difficulty": "factual"}]}`, nil
	default:
		return `{"score": 0.8, "reasoning": "fine"}`, nil
	}
}

// queryEmbedder returns a fixed query vector for every embed call.
type queryEmbedder struct {
	vec []float32
	err error
}

func (q *queryEmbedder) Dimensions() int { return len(q.vec) }

func (q *queryEmbedder) Embed(context.Context, string) ([]float32, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.vec, nil
}

func (q *queryEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = q.vec
	}
	return out, nil
}

func unit(angle float64) []float32 {
	return []float32{float32(math.Cos(angle)), float32(math.Sin(angle))}
}

// runnerFixture seeds one notebook with five embedded chunks whose
// similarity to the query strictly decreases: cA, cG, cB, cC, cD.
type runnerFixture struct {
	stores   store.Stores
	runner   *Runner
	dataset  domain.EvaluationDataset
	chunkIDs map[string]string // label -> chunk id
	provider *routedProvider
	embedder *queryEmbedder
}

func newRunnerFixture(t *testing.T, questions int) *runnerFixture {
	t.Helper()
	ctx := context.Background()
	s := store.NewMemory()

	nb := domain.NewNotebook("nb", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))
	doc := domain.NewDocument(nb.ID, "https://x.test/a", "Doc")
	doc.Status = domain.DocumentCompleted
	require.NoError(t, s.Documents.Save(ctx, doc))

	labels := []string{"cA", "cG", "cB", "cC", "cD"}
	chunkIDs := make(map[string]string, len(labels))
	chunks := make([]domain.Chunk, 0, len(labels))
	for i, label := range labels {
		c := domain.NewChunk(doc.ID, "content "+label, i*10, i*10+9, i, 2).
			WithEmbedding(unit(float64(i) * 0.2))
		chunkIDs[label] = c.ID
		chunks = append(chunks, c)
	}
	require.NoError(t, s.Chunks.SaveBatch(ctx, chunks))

	provider := &routedProvider{}
	embedder := &queryEmbedder{vec: unit(0)}
	retrieval := retrieve.NewService(s.Documents, s.Vector, embedder)
	answerer := rag.NewAnswerer(provider, "m")
	judge := NewJudge(provider, "m")
	generator := NewGenerator(provider, "m", 7)
	runner := NewRunner(s.Notebooks, s.Documents, s.Chunks, s.Evaluations, retrieval, answerer, judge, generator)

	dataset := domain.NewEvaluationDataset(nb.ID, "smoke", 1, 50)
	dataset, err := dataset.MarkGenerating()
	require.NoError(t, err)
	var cases []domain.TestCase
	for i := 0; i < questions; i++ {
		cases = append(cases, domain.NewTestCase("What is the fact?", []string{chunkIDs["cG"]}, chunkIDs["cG"], domain.DifficultyFactual))
	}
	dataset, err = dataset.MarkCompleted(cases)
	require.NoError(t, err)
	require.NoError(t, s.Evaluations.SaveDatasetWithTestCases(ctx, dataset))

	return &runnerFixture{stores: s, runner: runner, dataset: dataset, chunkIDs: chunkIDs, provider: provider, embedder: embedder}
}

func TestRunRetrievalOnlyMatchesKnownMetrics(t *testing.T) {
	f := newRunnerFixture(t, 1)

	run, err := f.runner.Run(context.Background(), f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationRetrievalOnly})
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, run.Status)
	require.Len(t, run.Results, 1)

	res := run.Results[0]
	require.Equal(t, []string{
		f.chunkIDs["cA"], f.chunkIDs["cG"], f.chunkIDs["cB"], f.chunkIDs["cC"], f.chunkIDs["cD"],
	}, res.RetrievedChunkIDs)

	assert.InDelta(t, 0.2, res.Precision, 1e-12)
	assert.InDelta(t, 1.0, res.Recall, 1e-12)
	assert.True(t, res.Hit)
	assert.InDelta(t, 0.5, res.ReciprocalRank, 1e-12)
	assert.InDelta(t, 1.0/math.Log2(3), res.NDCG, 1e-12)
	assert.InDelta(t, 0.5, res.MAPScore, 1e-12)

	assert.InDelta(t, 0.2, run.Aggregates.PrecisionAtK, 1e-12)
	assert.InDelta(t, 1.0, run.Aggregates.RecallAtK, 1e-12)
	assert.InDelta(t, 1.0, run.Aggregates.HitRateAtK, 1e-12)
	assert.InDelta(t, 0.5, run.Aggregates.MRR, 1e-12)
	assert.Zero(t, run.Aggregates.Faithfulness)
}

func TestRunFullRAGScoresGeneration(t *testing.T) {
	f := newRunnerFixture(t, 1)

	run, err := f.runner.Run(context.Background(), f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationFullRAG})
	require.NoError(t, err)
	require.Len(t, run.Results, 1)

	res := run.Results[0]
	assert.Equal(t, "The ground truth fact [2].", res.GeneratedAnswer)
	assert.InDelta(t, 0.8, res.Faithfulness, 1e-12)
	assert.InDelta(t, 0.8, res.AnswerRelevancy, 1e-12)

	// The answer cites source 2, which is cG — the ground truth.
	require.Equal(t, []string{f.chunkIDs["cG"]}, res.CitedChunkIDs)
	assert.InDelta(t, 1.0, res.CitationPrecision, 1e-12)
	assert.InDelta(t, 1.0, res.CitationRecall, 1e-12)
	assert.NotEmpty(t, res.ClaimsJSON)

	// One of two claims is fabricated.
	assert.InDelta(t, 0.5, run.Aggregates.HallucinationRate, 1e-12)
	assert.InDelta(t, 0.8, run.Aggregates.Faithfulness, 1e-12)
}

func TestRunFailureKeepsPartialResults(t *testing.T) {
	f := newRunnerFixture(t, 3)

	// Fail retrieval on the second case by breaking the embedder after one use.
	failAfter := &countingEmbedder{inner: f.embedder, failAfterCalls: 1}
	f.runner.retrieval = retrieve.NewService(f.stores.Documents, f.stores.Vector, failAfter)

	run, err := f.runner.Run(context.Background(), f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationRetrievalOnly})
	require.Error(t, err)
	assert.Equal(t, domain.RunFailed, run.Status)
	assert.NotEmpty(t, run.ErrorMessage)

	persisted, gerr := f.stores.Evaluations.GetRun(context.Background(), run.ID)
	require.NoError(t, gerr)
	assert.Equal(t, domain.RunFailed, persisted.Status)
	assert.Len(t, persisted.Results, 1, "first case's result must survive")
}

type countingEmbedder struct {
	inner          *queryEmbedder
	failAfterCalls int
	calls          int
}

func (c *countingEmbedder) Dimensions() int { return c.inner.Dimensions() }

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	if c.calls > c.failAfterCalls {
		return nil, apperr.ExternalService("embedder down")
	}
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func TestRunRejectsUnreadyDataset(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	ds := domain.NewEvaluationDataset("nb", "pending", 1, 10)
	require.NoError(t, s.Evaluations.SaveDataset(ctx, ds))

	provider := &routedProvider{}
	runner := NewRunner(s.Notebooks, s.Documents, s.Chunks, s.Evaluations,
		retrieve.NewService(s.Documents, s.Vector, &queryEmbedder{vec: unit(0)}),
		rag.NewAnswerer(provider, "m"), NewJudge(provider, "m"), NewGenerator(provider, "m", 1))

	_, err := runner.Run(ctx, ds.ID, RunOptions{K: 5})
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}

func TestGenerateDatasetEndToEnd(t *testing.T) {
	f := newRunnerFixture(t, 1)

	ds, err := f.runner.GenerateDataset(context.Background(), f.dataset.NotebookID, "generated", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.DatasetCompleted, ds.Status)
	require.NotEmpty(t, ds.TestCases)
	for _, tc := range ds.TestCases {
		assert.Equal(t, "What is the fact?", tc.Question)
		assert.Len(t, tc.GroundTruthChunkIDs, 1)
		assert.Equal(t, tc.GroundTruthChunkIDs[0], tc.SourceChunkID)
		assert.Equal(t, domain.DifficultyFactual, tc.Difficulty)
	}
}

func TestGenerateDatasetNoCompletedDocuments(t *testing.T) {
	s := store.NewMemory()
	ctx := context.Background()
	nb := domain.NewNotebook("empty", "")
	require.NoError(t, s.Notebooks.Save(ctx, nb))

	provider := &routedProvider{}
	runner := NewRunner(s.Notebooks, s.Documents, s.Chunks, s.Evaluations,
		retrieve.NewService(s.Documents, s.Vector, &queryEmbedder{vec: unit(0)}),
		rag.NewAnswerer(provider, "m"), NewJudge(provider, "m"), NewGenerator(provider, "m", 1))

	_, err := runner.GenerateDataset(ctx, nb.ID, "nope", 1, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	datasets, lerr := s.Evaluations.ListDatasetsByNotebook(ctx, nb.ID)
	require.NoError(t, lerr)
	require.Len(t, datasets, 1)
	assert.Equal(t, domain.DatasetFailed, datasets[0].Status)
}

func TestBreakdownByDifficulty(t *testing.T) {
	tcEasy := domain.NewTestCase("q1", []string{"g"}, "g", domain.DifficultyFactual)
	tcHard := domain.NewTestCase("q2", []string{"g"}, "g", domain.DifficultyMultiHop)
	tcNone := domain.NewTestCase("q3", []string{"g"}, "g", "")

	ds := domain.EvaluationDataset{TestCases: []domain.TestCase{tcEasy, tcHard, tcNone}}

	mk := func(tcID string, precision float64) domain.TestCaseResult {
		r := domain.NewTestCaseResult(tcID, []string{"g"}, []float64{1})
		r.Precision = precision
		r.Hit = true
		return r
	}
	run := domain.EvaluationRun{
		EvaluationType: domain.EvaluationRetrievalOnly,
		Results:        []domain.TestCaseResult{mk(tcEasy.ID, 1.0), mk(tcHard.ID, 0.2), mk(tcNone.ID, 0.6)},
	}

	got := BreakdownByDifficulty(ds, run)
	require.Len(t, got, 2, "unlabeled cases are skipped")
	assert.InDelta(t, 1.0, got[domain.DifficultyFactual].Aggregates.PrecisionAtK, 1e-12)
	assert.InDelta(t, 0.2, got[domain.DifficultyMultiHop].Aggregates.PrecisionAtK, 1e-12)
	assert.Equal(t, 1, got[domain.DifficultyFactual].Cases)
}

func TestCompareRuns(t *testing.T) {
	f := newRunnerFixture(t, 2)
	ctx := context.Background()

	run1, err := f.runner.Run(ctx, f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationRetrievalOnly})
	require.NoError(t, err)
	run2, err := f.runner.Run(ctx, f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationRetrievalOnly})
	require.NoError(t, err)

	cmp, err := Compare(ctx, f.stores.Evaluations, []string{run1.ID, run2.ID})
	require.NoError(t, err)
	assert.Equal(t, f.dataset.ID, cmp.DatasetID)
	assert.Equal(t, 5, cmp.K)
	require.Len(t, cmp.Runs, 2)
	require.Len(t, cmp.Cases, 2)
	for _, cc := range cmp.Cases {
		assert.Len(t, cc.ByRun, 2)
	}
}

func TestCompareValidation(t *testing.T) {
	f := newRunnerFixture(t, 1)
	ctx := context.Background()

	run1, err := f.runner.Run(ctx, f.dataset.ID, RunOptions{K: 5, Type: domain.EvaluationRetrievalOnly})
	require.NoError(t, err)
	run2, err := f.runner.Run(ctx, f.dataset.ID, RunOptions{K: 3, Type: domain.EvaluationRetrievalOnly})
	require.NoError(t, err)

	_, err = Compare(ctx, f.stores.Evaluations, []string{run1.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = Compare(ctx, f.stores.Evaluations, []string{run1.ID, run2.ID})
	assert.True(t, apperr.IsKind(err, apperr.KindValidation), "different k must be rejected")
}
