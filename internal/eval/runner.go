package eval

import (
	"context"
	"encoding/json"

	"notelm/internal/apperr"
	"notelm/internal/domain"
	"notelm/internal/observability"
	"notelm/internal/rag"
	"notelm/internal/retrieve"
	"notelm/internal/store"
)

// RunOptions parameterize one evaluation run.
type RunOptions struct {
	K    int
	Type domain.EvaluationType
}

// Runner generates datasets and executes evaluation runs.
type Runner struct {
	notebooks store.NotebookStore
	docs      store.DocumentStore
	chunks    store.ChunkStore
	evals     store.EvaluationStore
	retrieval *retrieve.Service
	answerer  *rag.Answerer
	judge     *Judge
	generator *Generator
}

func NewRunner(
	notebooks store.NotebookStore,
	docs store.DocumentStore,
	chunks store.ChunkStore,
	evals store.EvaluationStore,
	retrieval *retrieve.Service,
	answerer *rag.Answerer,
	judge *Judge,
	generator *Generator,
) *Runner {
	return &Runner{
		notebooks: notebooks,
		docs:      docs,
		chunks:    chunks,
		evals:     evals,
		retrieval: retrieval,
		answerer:  answerer,
		judge:     judge,
		generator: generator,
	}
}

// GenerateDataset samples chunks from the notebook's completed documents and
// builds a test-case dataset with the LLM.
func (r *Runner) GenerateDataset(ctx context.Context, notebookID, name string, questionsPerChunk, maxChunksSample int) (domain.EvaluationDataset, error) {
	if _, err := r.notebooks.Get(ctx, notebookID); err != nil {
		return domain.EvaluationDataset{}, err
	}

	dataset := domain.NewEvaluationDataset(notebookID, name, questionsPerChunk, maxChunksSample)
	dataset, err := dataset.MarkGenerating()
	if err != nil {
		return domain.EvaluationDataset{}, err
	}
	if err := r.evals.SaveDataset(ctx, dataset); err != nil {
		return domain.EvaluationDataset{}, err
	}

	completed, err := r.docs.ListByStatus(ctx, notebookID, domain.DocumentCompleted)
	if err != nil {
		return r.failDataset(ctx, dataset, err)
	}
	if len(completed) == 0 {
		return r.failDataset(ctx, dataset, apperr.Validation("no completed documents found in notebook"))
	}

	var allChunks []domain.Chunk
	for _, doc := range completed {
		chunks, err := r.chunks.ListByDocument(ctx, doc.ID)
		if err != nil {
			return r.failDataset(ctx, dataset, err)
		}
		allChunks = append(allChunks, chunks...)
	}
	if len(allChunks) == 0 {
		return r.failDataset(ctx, dataset, apperr.Validation("no chunks found in notebook documents"))
	}

	cases := r.generator.GenerateTestCases(ctx, allChunks, questionsPerChunk, maxChunksSample)
	if len(cases) == 0 {
		return r.failDataset(ctx, dataset, apperr.ExternalService("failed to generate any test cases"))
	}

	dataset, err = dataset.MarkCompleted(cases)
	if err != nil {
		return domain.EvaluationDataset{}, err
	}
	if err := r.evals.SaveDatasetWithTestCases(ctx, dataset); err != nil {
		return domain.EvaluationDataset{}, err
	}
	return dataset, nil
}

func (r *Runner) failDataset(ctx context.Context, dataset domain.EvaluationDataset, cause error) (domain.EvaluationDataset, error) {
	if failed, err := dataset.MarkFailed(cause.Error()); err == nil {
		_ = r.evals.SaveDataset(ctx, failed)
	}
	return domain.EvaluationDataset{}, cause
}

// Run executes every test case through retrieval (and RAG + judging for
// full_rag), persisting partial results as it goes. A mid-run failure marks
// the run FAILED and keeps the results written so far.
func (r *Runner) Run(ctx context.Context, datasetID string, opts RunOptions) (domain.EvaluationRun, error) {
	log := observability.LoggerWithTrace(ctx)

	dataset, err := r.evals.GetDataset(ctx, datasetID)
	if err != nil {
		return domain.EvaluationRun{}, err
	}
	if !dataset.Status.Runnable() {
		return domain.EvaluationRun{}, apperr.InvalidState("dataset is not ready for evaluation (status: %s)", dataset.Status)
	}
	if opts.K <= 0 {
		opts.K = 5
	}
	if opts.Type == "" {
		opts.Type = domain.EvaluationRetrievalOnly
	}

	run := domain.NewEvaluationRun(datasetID, opts.K, opts.Type)
	run, err = run.MarkRunning()
	if err != nil {
		return domain.EvaluationRun{}, err
	}
	if err := r.evals.SaveRun(ctx, run); err != nil {
		return domain.EvaluationRun{}, err
	}

	results, runErr := r.executeCases(ctx, dataset, run, opts)
	if runErr != nil {
		log.Error().Str("run_id", run.ID).Err(runErr).Msg("evaluation_run_failed")
		if failed, err := run.MarkFailed(runErr.Error()); err == nil {
			_ = r.evals.SaveRun(ctx, failed)
			return failed, runErr
		}
		return run, runErr
	}

	run, err = run.MarkCompleted(aggregate(results, opts.Type), results)
	if err != nil {
		return domain.EvaluationRun{}, err
	}
	if err := r.evals.SaveRun(ctx, run); err != nil {
		return domain.EvaluationRun{}, err
	}
	log.Info().Str("run_id", run.ID).Int("cases", len(results)).Msg("evaluation_run_completed")
	return run, nil
}

func (r *Runner) executeCases(ctx context.Context, dataset domain.EvaluationDataset, run domain.EvaluationRun, opts RunOptions) ([]domain.TestCaseResult, error) {
	var results []domain.TestCaseResult
	for _, tc := range dataset.TestCases {
		retrieved, err := r.retrieval.Retrieve(ctx, dataset.NotebookID, tc.Question, opts.K)
		if err != nil {
			return results, err
		}

		retrievedIDs := make([]string, len(retrieved))
		scores := make([]float64, len(retrieved))
		for i, rc := range retrieved {
			retrievedIDs[i] = rc.Chunk.ID
			scores[i] = rc.Score
		}
		relevant := make(map[string]bool, len(tc.GroundTruthChunkIDs))
		for _, id := range tc.GroundTruthChunkIDs {
			relevant[id] = true
		}

		res := domain.NewTestCaseResult(tc.ID, retrievedIDs, scores)
		res.Precision = PrecisionAtK(retrievedIDs, relevant, opts.K)
		res.Recall = RecallAtK(retrievedIDs, relevant, opts.K)
		res.Hit = HitAtK(retrievedIDs, relevant, opts.K)
		res.ReciprocalRank = ReciprocalRank(retrievedIDs, relevant, opts.K)
		res.NDCG = NDCGAtK(retrievedIDs, relevant, opts.K)
		res.MAPScore = AveragePrecisionAtK(retrievedIDs, relevant, opts.K)

		if opts.Type == domain.EvaluationFullRAG {
			if err := r.scoreGeneration(ctx, tc, retrieved, relevant, &res); err != nil {
				return results, err
			}
		}

		if err := r.evals.AppendResult(ctx, run.ID, res); err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) scoreGeneration(ctx context.Context, tc domain.TestCase, retrieved []retrieve.RetrievedChunk, relevant map[string]bool, res *domain.TestCaseResult) error {
	answer, err := r.answerer.Answer(ctx, tc.Question, retrieved, nil)
	if err != nil {
		return err
	}
	res.GeneratedAnswer = answer.Text

	contextChunks := make([]domain.Chunk, len(retrieved))
	for i, rc := range retrieved {
		contextChunks[i] = rc.Chunk
	}

	res.Faithfulness = r.judge.ScoreFaithfulness(ctx, tc.Question, answer.Text, contextChunks)
	res.AnswerRelevancy = r.judge.ScoreAnswerRelevancy(ctx, tc.Question, answer.Text)

	cited := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		cited = append(cited, c.ChunkID)
	}
	res.CitedChunkIDs = cited
	res.CitationPrecision = CitationPrecision(cited, relevant)
	res.CitationRecall = CitationRecall(cited, relevant)

	claims := r.judge.AnalyzeHallucinations(ctx, tc.Question, answer.Text, contextChunks)
	if len(claims) > 0 {
		if raw, err := json.Marshal(claims); err == nil {
			res.ClaimsJSON = string(raw)
		}
	}
	return nil
}

// aggregate computes arithmetic means over the per-case metrics. The
// hallucination rate is the mean fraction of contradicted or fabricated
// claims per answer.
func aggregate(results []domain.TestCaseResult, evalType domain.EvaluationType) domain.RunAggregates {
	if len(results) == 0 {
		return domain.RunAggregates{}
	}
	var agg domain.RunAggregates
	n := float64(len(results))
	for _, r := range results {
		agg.PrecisionAtK += r.Precision
		agg.RecallAtK += r.Recall
		if r.Hit {
			agg.HitRateAtK++
		}
		agg.MRR += r.ReciprocalRank
		agg.NDCGAtK += r.NDCG
		agg.MAPAtK += r.MAPScore
	}
	agg.PrecisionAtK /= n
	agg.RecallAtK /= n
	agg.HitRateAtK /= n
	agg.MRR /= n
	agg.NDCGAtK /= n
	agg.MAPAtK /= n

	if evalType != domain.EvaluationFullRAG {
		return agg
	}
	for _, r := range results {
		agg.Faithfulness += r.Faithfulness
		agg.AnswerRelevancy += r.AnswerRelevancy
		agg.CitationPrecision += r.CitationPrecision
		agg.CitationRecall += r.CitationRecall
		agg.HallucinationRate += hallucinationRate(r.ClaimsJSON)
	}
	agg.Faithfulness /= n
	agg.AnswerRelevancy /= n
	agg.CitationPrecision /= n
	agg.CitationRecall /= n
	agg.HallucinationRate /= n
	return agg
}

func hallucinationRate(claimsJSON string) float64 {
	if claimsJSON == "" {
		return 0
	}
	var claims []ClaimVerdict
	if err := json.Unmarshal([]byte(claimsJSON), &claims); err != nil || len(claims) == 0 {
		return 0
	}
	bad := 0
	for _, c := range claims {
		if c.Hallucinated() {
			bad++
		}
	}
	return float64(bad) / float64(len(claims))
}

// DifficultyAggregates are run aggregates restricted to one difficulty label.
type DifficultyAggregates struct {
	Aggregates domain.RunAggregates
	Cases      int
}

// BreakdownByDifficulty groups a run's results by the test case's difficulty
// label, skipping unlabeled cases.
func BreakdownByDifficulty(dataset domain.EvaluationDataset, run domain.EvaluationRun) map[domain.Difficulty]DifficultyAggregates {
	byCase := make(map[string]domain.Difficulty, len(dataset.TestCases))
	for _, tc := range dataset.TestCases {
		byCase[tc.ID] = tc.Difficulty
	}

	grouped := make(map[domain.Difficulty][]domain.TestCaseResult)
	for _, res := range run.Results {
		d := byCase[res.TestCaseID]
		if d == "" {
			continue
		}
		grouped[d] = append(grouped[d], res)
	}

	out := make(map[domain.Difficulty]DifficultyAggregates, len(grouped))
	for d, results := range grouped {
		out[d] = DifficultyAggregates{
			Aggregates: aggregate(results, run.EvaluationType),
			Cases:      len(results),
		}
	}
	return out
}
