package domain

import (
	"time"

	"notelm/internal/apperr"
)

type DatasetStatus string

const (
	DatasetPending    DatasetStatus = "pending"
	DatasetGenerating DatasetStatus = "generating"
	DatasetCompleted  DatasetStatus = "completed"
	DatasetFailed     DatasetStatus = "failed"
)

// Runnable reports whether the dataset can back an evaluation run.
func (s DatasetStatus) Runnable() bool { return s == DatasetCompleted }

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

type EvaluationType string

const (
	EvaluationRetrievalOnly EvaluationType = "retrieval_only"
	EvaluationFullRAG       EvaluationType = "full_rag"
)

// Difficulty labels a generated question. Unknown labels map to empty.
type Difficulty string

const (
	DifficultyFactual     Difficulty = "factual"
	DifficultyAnalytical  Difficulty = "analytical"
	DifficultyInferential Difficulty = "inferential"
	DifficultyParaphrased Difficulty = "paraphrased"
	DifficultyMultiHop    Difficulty = "multi_hop"
)

// ParseDifficulty maps a raw label to a known difficulty, or empty.
func ParseDifficulty(raw string) Difficulty {
	switch Difficulty(raw) {
	case DifficultyFactual, DifficultyAnalytical, DifficultyInferential, DifficultyParaphrased, DifficultyMultiHop:
		return Difficulty(raw)
	default:
		return ""
	}
}

// TestCase is one synthetic question with its ground-truth chunk set.
type TestCase struct {
	ID                  string
	Question            string
	GroundTruthChunkIDs []string // ordered, at least one
	SourceChunkID       string
	Difficulty          Difficulty
	CreatedAt           time.Time
}

func NewTestCase(question string, groundTruthChunkIDs []string, sourceChunkID string, difficulty Difficulty) TestCase {
	ids := make([]string, len(groundTruthChunkIDs))
	copy(ids, groundTruthChunkIDs)
	return TestCase{
		ID:                  NewID(),
		Question:            question,
		GroundTruthChunkIDs: ids,
		SourceChunkID:       sourceChunkID,
		Difficulty:          difficulty,
		CreatedAt:           utcNow(),
	}
}

// EvaluationDataset owns generated test cases for a notebook.
type EvaluationDataset struct {
	ID                string
	NotebookID        string
	Name              string
	Status            DatasetStatus
	QuestionsPerChunk int
	MaxChunksSample   int
	ErrorMessage      string
	TestCases         []TestCase
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewEvaluationDataset(notebookID, name string, questionsPerChunk, maxChunksSample int) EvaluationDataset {
	now := utcNow()
	return EvaluationDataset{
		ID:                NewID(),
		NotebookID:        notebookID,
		Name:              name,
		Status:            DatasetPending,
		QuestionsPerChunk: questionsPerChunk,
		MaxChunksSample:   maxChunksSample,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (d EvaluationDataset) MarkGenerating() (EvaluationDataset, error) {
	if d.Status != DatasetPending {
		return d, apperr.InvalidState("cannot generate dataset in status %s", d.Status)
	}
	d.Status = DatasetGenerating
	d.UpdatedAt = utcNow()
	return d, nil
}

func (d EvaluationDataset) MarkCompleted(testCases []TestCase) (EvaluationDataset, error) {
	if d.Status != DatasetGenerating {
		return d, apperr.InvalidState("cannot complete dataset in status %s", d.Status)
	}
	d.Status = DatasetCompleted
	d.TestCases = testCases
	d.UpdatedAt = utcNow()
	return d, nil
}

func (d EvaluationDataset) MarkFailed(message string) (EvaluationDataset, error) {
	if d.Status != DatasetGenerating {
		return d, apperr.InvalidState("cannot fail dataset in status %s", d.Status)
	}
	d.Status = DatasetFailed
	d.ErrorMessage = message
	d.UpdatedAt = utcNow()
	return d, nil
}

// RunAggregates holds the arithmetic means over per-case metrics. The
// generation fields are only meaningful for full_rag runs.
type RunAggregates struct {
	PrecisionAtK float64
	RecallAtK    float64
	HitRateAtK   float64
	MRR          float64
	NDCGAtK      float64
	MAPAtK       float64

	Faithfulness      float64
	AnswerRelevancy   float64
	CitationPrecision float64
	CitationRecall    float64
	HallucinationRate float64
}

// TestCaseResult is the outcome of one test case within a run.
type TestCaseResult struct {
	ID                string
	TestCaseID        string
	RetrievedChunkIDs []string
	RetrievedScores   []float64
	Precision         float64
	Recall            float64
	Hit               bool
	ReciprocalRank    float64
	NDCG              float64
	MAPScore          float64

	// Generation fields, populated for full_rag runs only.
	GeneratedAnswer   string
	Faithfulness      float64
	AnswerRelevancy   float64
	CitedChunkIDs     []string
	CitationPrecision float64
	CitationRecall    float64
	ClaimsJSON        string // claim decomposition verdicts, serialized
	CreatedAt         time.Time
}

func NewTestCaseResult(testCaseID string, retrievedIDs []string, scores []float64) TestCaseResult {
	ids := make([]string, len(retrievedIDs))
	copy(ids, retrievedIDs)
	sc := make([]float64, len(scores))
	copy(sc, scores)
	return TestCaseResult{
		ID:                NewID(),
		TestCaseID:        testCaseID,
		RetrievedChunkIDs: ids,
		RetrievedScores:   sc,
		CreatedAt:         utcNow(),
	}
}

// EvaluationRun executes a dataset through retrieval (and optionally RAG).
type EvaluationRun struct {
	ID             string
	DatasetID      string
	Status         RunStatus
	K              int
	EvaluationType EvaluationType
	Aggregates     RunAggregates
	ErrorMessage   string
	Results        []TestCaseResult
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewEvaluationRun(datasetID string, k int, evalType EvaluationType) EvaluationRun {
	now := utcNow()
	return EvaluationRun{
		ID:             NewID(),
		DatasetID:      datasetID,
		Status:         RunPending,
		K:              k,
		EvaluationType: evalType,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (r EvaluationRun) MarkRunning() (EvaluationRun, error) {
	if r.Status != RunPending {
		return r, apperr.InvalidState("cannot run evaluation in status %s", r.Status)
	}
	r.Status = RunRunning
	r.UpdatedAt = utcNow()
	return r, nil
}

func (r EvaluationRun) MarkCompleted(agg RunAggregates, results []TestCaseResult) (EvaluationRun, error) {
	if r.Status != RunRunning {
		return r, apperr.InvalidState("cannot complete evaluation in status %s", r.Status)
	}
	r.Status = RunCompleted
	r.Aggregates = agg
	r.Results = results
	r.UpdatedAt = utcNow()
	return r, nil
}

func (r EvaluationRun) MarkFailed(message string) (EvaluationRun, error) {
	if r.Status != RunRunning {
		return r, apperr.InvalidState("cannot fail evaluation in status %s", r.Status)
	}
	r.Status = RunFailed
	r.ErrorMessage = message
	r.UpdatedAt = utcNow()
	return r, nil
}
