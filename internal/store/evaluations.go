package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

type pgEvaluationStore struct{ db querier }

func (s *pgEvaluationStore) SaveDataset(ctx context.Context, ds domain.EvaluationDataset) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO evaluation_datasets (id, notebook_id, name, status, questions_per_chunk,
			max_chunks_sample, error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		ds.ID, ds.NotebookID, ds.Name, string(ds.Status), ds.QuestionsPerChunk,
		ds.MaxChunksSample, nullif(ds.ErrorMessage), ds.CreatedAt, ds.UpdatedAt)
	return err
}

func (s *pgEvaluationStore) SaveDatasetWithTestCases(ctx context.Context, ds domain.EvaluationDataset) error {
	if err := s.SaveDataset(ctx, ds); err != nil {
		return err
	}
	for _, tc := range ds.TestCases {
		_, err := s.db.Exec(ctx, `
			INSERT INTO evaluation_test_cases (id, dataset_id, question, ground_truth_chunk_ids,
				source_chunk_id, difficulty, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			tc.ID, ds.ID, tc.Question, tc.GroundTruthChunkIDs, tc.SourceChunkID,
			nullif(string(tc.Difficulty)), tc.CreatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *pgEvaluationStore) GetDataset(ctx context.Context, id string) (domain.EvaluationDataset, error) {
	var ds domain.EvaluationDataset
	var status string
	var errMsg *string
	err := s.db.QueryRow(ctx, `
		SELECT id, notebook_id, name, status, questions_per_chunk, max_chunks_sample, error_message, created_at, updated_at
		FROM evaluation_datasets WHERE id = $1`, id).
		Scan(&ds.ID, &ds.NotebookID, &ds.Name, &status, &ds.QuestionsPerChunk,
			&ds.MaxChunksSample, &errMsg, &ds.CreatedAt, &ds.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.EvaluationDataset{}, apperr.NotFound("evaluation dataset not found: %s", id)
	}
	if err != nil {
		return domain.EvaluationDataset{}, err
	}
	ds.Status = domain.DatasetStatus(status)
	ds.ErrorMessage = deref(errMsg)

	rows, err := s.db.Query(ctx, `
		SELECT id, question, ground_truth_chunk_ids, source_chunk_id, difficulty, created_at
		FROM evaluation_test_cases WHERE dataset_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return domain.EvaluationDataset{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var tc domain.TestCase
		var difficulty *string
		if err := rows.Scan(&tc.ID, &tc.Question, &tc.GroundTruthChunkIDs, &tc.SourceChunkID, &difficulty, &tc.CreatedAt); err != nil {
			return domain.EvaluationDataset{}, err
		}
		tc.Difficulty = domain.ParseDifficulty(deref(difficulty))
		ds.TestCases = append(ds.TestCases, tc)
	}
	return ds, rows.Err()
}

func (s *pgEvaluationStore) ListDatasetsByNotebook(ctx context.Context, notebookID string) ([]domain.EvaluationDataset, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, notebook_id, name, status, questions_per_chunk, max_chunks_sample, error_message, created_at, updated_at
		FROM evaluation_datasets WHERE notebook_id = $1 ORDER BY created_at`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.EvaluationDataset
	for rows.Next() {
		var ds domain.EvaluationDataset
		var status string
		var errMsg *string
		if err := rows.Scan(&ds.ID, &ds.NotebookID, &ds.Name, &status, &ds.QuestionsPerChunk,
			&ds.MaxChunksSample, &errMsg, &ds.CreatedAt, &ds.UpdatedAt); err != nil {
			return nil, err
		}
		ds.Status = domain.DatasetStatus(status)
		ds.ErrorMessage = deref(errMsg)
		out = append(out, ds)
	}
	return out, rows.Err()
}

func (s *pgEvaluationStore) SaveRun(ctx context.Context, run domain.EvaluationRun) error {
	a := run.Aggregates
	_, err := s.db.Exec(ctx, `
		INSERT INTO evaluation_runs (id, dataset_id, status, k, evaluation_type,
			precision_at_k, recall_at_k, hit_rate_at_k, mrr, ndcg_at_k, map_at_k,
			faithfulness, answer_relevancy, citation_precision, citation_recall, hallucination_rate,
			error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			precision_at_k = EXCLUDED.precision_at_k,
			recall_at_k = EXCLUDED.recall_at_k,
			hit_rate_at_k = EXCLUDED.hit_rate_at_k,
			mrr = EXCLUDED.mrr,
			ndcg_at_k = EXCLUDED.ndcg_at_k,
			map_at_k = EXCLUDED.map_at_k,
			faithfulness = EXCLUDED.faithfulness,
			answer_relevancy = EXCLUDED.answer_relevancy,
			citation_precision = EXCLUDED.citation_precision,
			citation_recall = EXCLUDED.citation_recall,
			hallucination_rate = EXCLUDED.hallucination_rate,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		run.ID, run.DatasetID, string(run.Status), run.K, string(run.EvaluationType),
		a.PrecisionAtK, a.RecallAtK, a.HitRateAtK, a.MRR, a.NDCGAtK, a.MAPAtK,
		a.Faithfulness, a.AnswerRelevancy, a.CitationPrecision, a.CitationRecall, a.HallucinationRate,
		nullif(run.ErrorMessage), run.CreatedAt, run.UpdatedAt)
	return err
}

func (s *pgEvaluationStore) AppendResult(ctx context.Context, runID string, r domain.TestCaseResult) error {
	var claims any
	if r.ClaimsJSON != "" {
		claims = []byte(r.ClaimsJSON)
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO evaluation_test_case_results (id, run_id, test_case_id, retrieved_chunk_ids,
			retrieved_scores, precision, recall, hit, reciprocal_rank, ndcg, map_score,
			generated_answer, faithfulness, answer_relevancy, cited_chunk_ids,
			citation_precision, citation_recall, claims, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING`,
		r.ID, runID, r.TestCaseID, r.RetrievedChunkIDs, r.RetrievedScores,
		r.Precision, r.Recall, r.Hit, r.ReciprocalRank, r.NDCG, r.MAPScore,
		nullif(r.GeneratedAnswer), r.Faithfulness, r.AnswerRelevancy, r.CitedChunkIDs,
		r.CitationPrecision, r.CitationRecall, claims, r.CreatedAt)
	return err
}

func (s *pgEvaluationStore) GetRun(ctx context.Context, id string) (domain.EvaluationRun, error) {
	var run domain.EvaluationRun
	var status, evalType string
	var errMsg *string
	a := &run.Aggregates
	err := s.db.QueryRow(ctx, `
		SELECT id, dataset_id, status, k, evaluation_type,
			COALESCE(precision_at_k, 0), COALESCE(recall_at_k, 0), COALESCE(hit_rate_at_k, 0),
			COALESCE(mrr, 0), COALESCE(ndcg_at_k, 0), COALESCE(map_at_k, 0),
			COALESCE(faithfulness, 0), COALESCE(answer_relevancy, 0),
			COALESCE(citation_precision, 0), COALESCE(citation_recall, 0), COALESCE(hallucination_rate, 0),
			error_message, created_at, updated_at
		FROM evaluation_runs WHERE id = $1`, id).
		Scan(&run.ID, &run.DatasetID, &status, &run.K, &evalType,
			&a.PrecisionAtK, &a.RecallAtK, &a.HitRateAtK, &a.MRR, &a.NDCGAtK, &a.MAPAtK,
			&a.Faithfulness, &a.AnswerRelevancy, &a.CitationPrecision, &a.CitationRecall, &a.HallucinationRate,
			&errMsg, &run.CreatedAt, &run.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.EvaluationRun{}, apperr.NotFound("evaluation run not found: %s", id)
	}
	if err != nil {
		return domain.EvaluationRun{}, err
	}
	run.Status = domain.RunStatus(status)
	run.EvaluationType = domain.EvaluationType(evalType)
	run.ErrorMessage = deref(errMsg)

	rows, err := s.db.Query(ctx, `
		SELECT id, test_case_id, retrieved_chunk_ids, retrieved_scores, precision, recall, hit,
			reciprocal_rank, ndcg, map_score, generated_answer, COALESCE(faithfulness, 0),
			COALESCE(answer_relevancy, 0), cited_chunk_ids, COALESCE(citation_precision, 0),
			COALESCE(citation_recall, 0), claims, created_at
		FROM evaluation_test_case_results WHERE run_id = $1 ORDER BY created_at`, id)
	if err != nil {
		return domain.EvaluationRun{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var r domain.TestCaseResult
		var answer *string
		var claims []byte
		if err := rows.Scan(&r.ID, &r.TestCaseID, &r.RetrievedChunkIDs, &r.RetrievedScores,
			&r.Precision, &r.Recall, &r.Hit, &r.ReciprocalRank, &r.NDCG, &r.MAPScore,
			&answer, &r.Faithfulness, &r.AnswerRelevancy, &r.CitedChunkIDs,
			&r.CitationPrecision, &r.CitationRecall, &claims, &r.CreatedAt); err != nil {
			return domain.EvaluationRun{}, err
		}
		r.GeneratedAnswer = deref(answer)
		r.ClaimsJSON = string(claims)
		run.Results = append(run.Results, r)
	}
	return run, rows.Err()
}

func (s *pgEvaluationStore) ListRunsByDataset(ctx context.Context, datasetID string) ([]domain.EvaluationRun, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM evaluation_runs WHERE dataset_id = $1 ORDER BY created_at`, datasetID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.EvaluationRun, 0, len(ids))
	for _, id := range ids {
		run, err := s.GetRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}
