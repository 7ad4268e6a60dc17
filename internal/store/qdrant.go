package store

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"github.com/qdrant/go-client/qdrant"

	"notelm/internal/domain"
)

// qdrantIndex mirrors chunk embeddings into a Qdrant collection and answers
// similarity queries there. Chunk rows stay in Postgres; hits are hydrated
// through the chunk store.
type qdrantIndex struct {
	client     *qdrant.Client
	collection string
	dims       int
	chunks     ChunkStore
}

// NewQdrantIndex connects to Qdrant over its gRPC API (port 6334 by default).
// An API key may be passed as a query parameter: "http://host:6334?api_key=k".
func NewQdrantIndex(dsn, collection string, dims int, chunks ChunkStore) (VectorIndex, error) {
	if collection == "" {
		collection = "notelm_chunks"
	}
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Qdrant DSN: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid port in Qdrant DSN: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create Qdrant client: %w", err)
	}

	idx := &qdrantIndex{client: client, collection: collection, dims: dims, chunks: chunks}
	if err := idx.ensureCollection(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}
	return idx, nil
}

func (q *qdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if q.dims <= 0 {
		return fmt.Errorf("qdrant requires dimensions > 0")
	}
	return q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

func (q *qdrantIndex) UpsertChunks(ctx context.Context, notebookID string, chunks []domain.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		vec := make([]float32, len(c.Embedding))
		copy(vec, c.Embedding)
		points = append(points, &qdrant.PointStruct{
			// Chunk ids are 32-hex UUIDs, which Qdrant accepts directly.
			Id:      qdrant.NewIDUUID(c.ID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{
				"notebook_id": notebookID,
				"document_id": c.DocumentID,
			}),
		})
	}
	if len(points) == 0 {
		return nil
	}
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
	})
	return err
}

func (q *qdrantIndex) DeleteByDocument(ctx context.Context, documentID string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("document_id", documentID)},
		}),
	})
	return err
}

func (q *qdrantIndex) Search(ctx context.Context, notebookID string, embedding []float32, limit int) ([]ScoredChunk, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := make([]float32, len(embedding))
	copy(vec, embedding)
	lim := uint64(limit)

	hits, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &lim,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("notebook_id", notebookID)},
		},
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(hits))
	scores := make(map[string]float64, len(hits))
	order := make(map[string]int, len(hits))
	for i, hit := range hits {
		id := hexID(hit.Id.GetUuid())
		ids = append(ids, id)
		scores[id] = float64(hit.Score)
		order[id] = i
	}

	chunks, err := q.chunks.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, ScoredChunk{Chunk: c, Score: scores[c.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return order[out[i].Chunk.ID] < order[out[j].Chunk.ID] })
	return out, nil
}

// hexID strips dashes from the canonical UUID form Qdrant returns.
func hexID(u string) string {
	out := make([]byte, 0, 32)
	for i := 0; i < len(u); i++ {
		if u[i] != '-' {
			out = append(out, u[i])
		}
	}
	return string(out)
}
