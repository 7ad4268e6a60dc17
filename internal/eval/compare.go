package eval

import (
	"context"

	"notelm/internal/apperr"
	"notelm/internal/domain"
	"notelm/internal/store"
)

const (
	compareMinRuns = 2
	compareMaxRuns = 10
)

// RunComparisonEntry is one run's aggregates within a comparison.
type RunComparisonEntry struct {
	RunID          string
	EvaluationType domain.EvaluationType
	Aggregates     domain.RunAggregates
	CreatedAt      string
}

// CaseComparison lines up one test case's per-run results.
type CaseComparison struct {
	TestCaseID string
	Question   string
	ByRun      map[string]domain.TestCaseResult
}

// Comparison is the cross-run report for one dataset at a fixed k.
type Comparison struct {
	DatasetID string
	K         int
	Runs      []RunComparisonEntry
	Cases     []CaseComparison
}

// Compare lines up 2–10 completed runs of the same dataset and k.
func Compare(ctx context.Context, evals store.EvaluationStore, runIDs []string) (Comparison, error) {
	if len(runIDs) < compareMinRuns || len(runIDs) > compareMaxRuns {
		return Comparison{}, apperr.Validation("comparison requires between %d and %d runs, got %d", compareMinRuns, compareMaxRuns, len(runIDs))
	}

	runs := make([]domain.EvaluationRun, 0, len(runIDs))
	for _, id := range runIDs {
		run, err := evals.GetRun(ctx, id)
		if err != nil {
			return Comparison{}, err
		}
		if run.Status != domain.RunCompleted {
			return Comparison{}, apperr.Validation("run %s is not completed (status: %s)", id, run.Status)
		}
		runs = append(runs, run)
	}

	first := runs[0]
	for _, run := range runs[1:] {
		if run.DatasetID != first.DatasetID {
			return Comparison{}, apperr.Validation("runs belong to different datasets")
		}
		if run.K != first.K {
			return Comparison{}, apperr.Validation("runs use different k values (%d vs %d)", first.K, run.K)
		}
	}

	dataset, err := evals.GetDataset(ctx, first.DatasetID)
	if err != nil {
		return Comparison{}, err
	}
	questions := make(map[string]string, len(dataset.TestCases))
	caseOrder := make([]string, 0, len(dataset.TestCases))
	for _, tc := range dataset.TestCases {
		questions[tc.ID] = tc.Question
		caseOrder = append(caseOrder, tc.ID)
	}

	cmp := Comparison{DatasetID: first.DatasetID, K: first.K}
	for _, run := range runs {
		cmp.Runs = append(cmp.Runs, RunComparisonEntry{
			RunID:          run.ID,
			EvaluationType: run.EvaluationType,
			Aggregates:     run.Aggregates,
			CreatedAt:      run.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
		})
	}

	byRunAndCase := make(map[string]map[string]domain.TestCaseResult, len(runs))
	for _, run := range runs {
		m := make(map[string]domain.TestCaseResult, len(run.Results))
		for _, res := range run.Results {
			m[res.TestCaseID] = res
		}
		byRunAndCase[run.ID] = m
	}

	for _, tcID := range caseOrder {
		entry := CaseComparison{
			TestCaseID: tcID,
			Question:   questions[tcID],
			ByRun:      make(map[string]domain.TestCaseResult, len(runs)),
		}
		for _, run := range runs {
			if res, ok := byRunAndCase[run.ID][tcID]; ok {
				entry.ByRun[run.ID] = res
			}
		}
		cmp.Cases = append(cmp.Cases, entry)
	}
	return cmp, nil
}
