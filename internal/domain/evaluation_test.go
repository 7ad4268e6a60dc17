package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notelm/internal/apperr"
)

func TestParseDifficulty(t *testing.T) {
	assert.Equal(t, DifficultyFactual, ParseDifficulty("factual"))
	assert.Equal(t, DifficultyMultiHop, ParseDifficulty("multi_hop"))
	assert.Equal(t, Difficulty(""), ParseDifficulty("impossible"))
	assert.Equal(t, Difficulty(""), ParseDifficulty(""))
}

func TestDatasetLifecycle(t *testing.T) {
	ds := NewEvaluationDataset("nb1", "smoke", 2, 50)

	_, err := ds.MarkCompleted(nil)
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))

	ds, err = ds.MarkGenerating()
	require.NoError(t, err)

	tc := NewTestCase("What is X?", []string{"c1"}, "c1", DifficultyFactual)
	ds, err = ds.MarkCompleted([]TestCase{tc})
	require.NoError(t, err)
	assert.True(t, ds.Status.Runnable())
	require.Len(t, ds.TestCases, 1)
	assert.Equal(t, []string{"c1"}, ds.TestCases[0].GroundTruthChunkIDs)
}

func TestRunLifecycle(t *testing.T) {
	run := NewEvaluationRun("ds1", 5, EvaluationFullRAG)
	run, err := run.MarkRunning()
	require.NoError(t, err)

	agg := RunAggregates{PrecisionAtK: 0.2, RecallAtK: 1.0, HitRateAtK: 1.0, MRR: 0.5}
	res := NewTestCaseResult("tc1", []string{"a", "g"}, []float64{0.9, 0.8})
	run, err = run.MarkCompleted(agg, []TestCaseResult{res})
	require.NoError(t, err)
	assert.Equal(t, RunCompleted, run.Status)
	assert.Equal(t, 0.2, run.Aggregates.PrecisionAtK)

	_, err = run.MarkFailed("late")
	assert.True(t, apperr.IsKind(err, apperr.KindInvalidState))
}
