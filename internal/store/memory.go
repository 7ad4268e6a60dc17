package store

import (
	"context"
	"math"
	"sort"
	"sync"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

// NewMemory returns a fully in-memory backend. It backs unit tests and the
// "memory" factory mode; the vector index is an exact cosine scan.
func NewMemory() Stores {
	m := &memoryBackend{
		notebooks:  make(map[string]domain.Notebook),
		documents:  make(map[string]domain.Document),
		chunks:     make(map[string]domain.Chunk),
		crawlJobs:  make(map[string]domain.CrawlJob),
		discovered: make(map[string][]domain.DiscoveredUrl),
		convos:     make(map[string]domain.Conversation),
		messages:   make(map[string][]domain.Message),
		datasets:   make(map[string]domain.EvaluationDataset),
		runs:       make(map[string]domain.EvaluationRun),
		results:    make(map[string][]domain.TestCaseResult),
	}
	return Stores{
		Notebooks:     m,
		Documents:     (*memDocuments)(m),
		Chunks:        (*memChunks)(m),
		Crawls:        (*memCrawls)(m),
		Conversations: (*memConversations)(m),
		Evaluations:   (*memEvaluations)(m),
		Vector:        (*memVector)(m),
		Tx:            (*memTransactor)(m),
	}
}

type memoryBackend struct {
	mu         sync.RWMutex
	notebooks  map[string]domain.Notebook
	documents  map[string]domain.Document
	chunks     map[string]domain.Chunk
	crawlJobs  map[string]domain.CrawlJob
	discovered map[string][]domain.DiscoveredUrl
	convos     map[string]domain.Conversation
	messages   map[string][]domain.Message
	datasets   map[string]domain.EvaluationDataset
	runs       map[string]domain.EvaluationRun
	results    map[string][]domain.TestCaseResult
}

// --- notebooks ---

func (m *memoryBackend) Save(_ context.Context, n domain.Notebook) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notebooks[n.ID] = n
	return nil
}

func (m *memoryBackend) Get(_ context.Context, id string) (domain.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.notebooks[id]
	if !ok {
		return domain.Notebook{}, apperr.NotFound("notebook not found: %s", id)
	}
	return n, nil
}

func (m *memoryBackend) List(_ context.Context) ([]domain.Notebook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Notebook, 0, len(m.notebooks))
	for _, n := range m.notebooks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memoryBackend) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notebooks[id]; !ok {
		return apperr.NotFound("notebook not found: %s", id)
	}
	delete(m.notebooks, id)
	for docID, d := range m.documents {
		if d.NotebookID == id {
			delete(m.documents, docID)
			for cid, c := range m.chunks {
				if c.DocumentID == docID {
					delete(m.chunks, cid)
				}
			}
		}
	}
	return nil
}

// --- documents ---

type memDocuments memoryBackend

func (m *memDocuments) Save(_ context.Context, d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents[d.ID] = d
	return nil
}

func (m *memDocuments) Get(_ context.Context, id string) (domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.documents[id]
	if !ok {
		return domain.Document{}, apperr.NotFound("document not found: %s", id)
	}
	return d, nil
}

func (m *memDocuments) FindByNotebookAndURL(_ context.Context, notebookID, url string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.documents {
		if d.NotebookID == notebookID && d.URL == url {
			return d, true, nil
		}
	}
	return domain.Document{}, false, nil
}

func (m *memDocuments) ListByNotebook(_ context.Context, notebookID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Document
	for _, d := range m.documents {
		if d.NotebookID == notebookID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memDocuments) ListByStatus(ctx context.Context, notebookID string, status domain.DocumentStatus) ([]domain.Document, error) {
	all, err := m.ListByNotebook(ctx, notebookID)
	if err != nil {
		return nil, err
	}
	out := all[:0:0]
	for _, d := range all {
		if d.Status == status {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.documents[id]; !ok {
		return apperr.NotFound("document not found: %s", id)
	}
	delete(m.documents, id)
	for cid, c := range m.chunks {
		if c.DocumentID == id {
			delete(m.chunks, cid)
		}
	}
	return nil
}

// --- chunks ---

type memChunks memoryBackend

func (m *memChunks) SaveBatch(_ context.Context, chunks []domain.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.chunks[c.ID] = c
	}
	return nil
}

func (m *memChunks) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, c := range m.chunks {
		if c.DocumentID == documentID {
			delete(m.chunks, id)
			n++
		}
	}
	return n, nil
}

func (m *memChunks) ListByDocument(_ context.Context, documentID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range m.chunks {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

func (m *memChunks) ListByNotebook(_ context.Context, notebookID string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Chunk
	for _, c := range m.chunks {
		if d, ok := m.documents[c.DocumentID]; ok && d.NotebookID == notebookID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocumentID != out[j].DocumentID {
			return out[i].DocumentID < out[j].DocumentID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (m *memChunks) GetMany(_ context.Context, ids []string) ([]domain.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.chunks[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// --- vector index: exact cosine scan ---

type memVector memoryBackend

func (m *memVector) UpsertChunks(context.Context, string, []domain.Chunk) error { return nil }

func (m *memVector) DeleteByDocument(context.Context, string) error { return nil }

func (m *memVector) Search(_ context.Context, notebookID string, embedding []float32, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []ScoredChunk
	for _, c := range m.chunks {
		if c.Embedding == nil {
			continue
		}
		d, ok := m.documents[c.DocumentID]
		if !ok || d.NotebookID != notebookID {
			continue
		}
		out = append(out, ScoredChunk{Chunk: c, Score: cosine(embedding, c.Embedding)})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// --- crawls ---

type memCrawls memoryBackend

func (m *memCrawls) SaveJob(_ context.Context, j domain.CrawlJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.crawlJobs[j.ID] = j
	return nil
}

func (m *memCrawls) GetJob(_ context.Context, id string) (domain.CrawlJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.crawlJobs[id]
	if !ok {
		return domain.CrawlJob{}, apperr.NotFound("crawl job not found: %s", id)
	}
	return j, nil
}

func (m *memCrawls) ListJobsByNotebook(_ context.Context, notebookID string) ([]domain.CrawlJob, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CrawlJob
	for _, j := range m.crawlJobs {
		if j.NotebookID == notebookID {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memCrawls) SaveDiscovered(_ context.Context, crawlJobID string, du domain.DiscoveredUrl) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing := m.discovered[crawlJobID]
	for i, e := range existing {
		if e.URL == du.URL {
			existing[i] = du
			return nil
		}
	}
	m.discovered[crawlJobID] = append(existing, du)
	return nil
}

func (m *memCrawls) ListDiscovered(_ context.Context, crawlJobID string) ([]domain.DiscoveredUrl, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.DiscoveredUrl, len(m.discovered[crawlJobID]))
	copy(out, m.discovered[crawlJobID])
	return out, nil
}

// --- conversations ---

type memConversations memoryBackend

func (m *memConversations) SaveConversation(_ context.Context, c domain.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convos[c.ID] = c
	return nil
}

func (m *memConversations) GetConversation(_ context.Context, id string) (domain.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.convos[id]
	if !ok {
		return domain.Conversation{}, apperr.NotFound("conversation not found: %s", id)
	}
	return c, nil
}

func (m *memConversations) SaveMessage(_ context.Context, msg domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	return nil
}

func (m *memConversations) ListMessages(_ context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	msgs := m.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// --- evaluations ---

type memEvaluations memoryBackend

func (m *memEvaluations) SaveDataset(_ context.Context, ds domain.EvaluationDataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.datasets[ds.ID]; ok && ds.TestCases == nil {
		ds.TestCases = prev.TestCases
	}
	m.datasets[ds.ID] = ds
	return nil
}

func (m *memEvaluations) SaveDatasetWithTestCases(_ context.Context, ds domain.EvaluationDataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets[ds.ID] = ds
	return nil
}

func (m *memEvaluations) GetDataset(_ context.Context, id string) (domain.EvaluationDataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ds, ok := m.datasets[id]
	if !ok {
		return domain.EvaluationDataset{}, apperr.NotFound("evaluation dataset not found: %s", id)
	}
	return ds, nil
}

func (m *memEvaluations) ListDatasetsByNotebook(_ context.Context, notebookID string) ([]domain.EvaluationDataset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.EvaluationDataset
	for _, ds := range m.datasets {
		if ds.NotebookID == notebookID {
			out = append(out, ds)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memEvaluations) SaveRun(_ context.Context, run domain.EvaluationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	return nil
}

func (m *memEvaluations) AppendResult(_ context.Context, runID string, res domain.TestCaseResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[runID] = append(m.results[runID], res)
	return nil
}

func (m *memEvaluations) GetRun(_ context.Context, id string) (domain.EvaluationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return domain.EvaluationRun{}, apperr.NotFound("evaluation run not found: %s", id)
	}
	run.Results = append([]domain.TestCaseResult(nil), m.results[id]...)
	return run, nil
}

func (m *memEvaluations) ListRunsByDataset(_ context.Context, datasetID string) ([]domain.EvaluationRun, error) {
	m.mu.RLock()
	ids := make([]string, 0)
	for id, run := range m.runs {
		if run.DatasetID == datasetID {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()

	out := make([]domain.EvaluationRun, 0, len(ids))
	for _, id := range ids {
		run, err := m.GetRun(context.Background(), id)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// --- transactor: the memory backend has no rollback; fn runs directly ---

type memTransactor memoryBackend

func (m *memTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s TxStores) error) error {
	return fn(ctx, TxStores{
		Documents: (*memDocuments)(m),
		Chunks:    (*memChunks)(m),
	})
}
