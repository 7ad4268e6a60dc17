package domain

import "time"

// Chunk is a contiguous substring of a document's extracted text.
// Invariant: for the document's most recent extraction,
// text[CharStart:CharEnd] == Content.
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	CharStart  int
	CharEnd    int
	ChunkIndex int
	TokenCount int
	Embedding  []float32 // nil until embedded
	CreatedAt  time.Time
}

func NewChunk(documentID, content string, charStart, charEnd, chunkIndex, tokenCount int) Chunk {
	return Chunk{
		ID:         NewID(),
		DocumentID: documentID,
		Content:    content,
		CharStart:  charStart,
		CharEnd:    charEnd,
		ChunkIndex: chunkIndex,
		TokenCount: tokenCount,
		CreatedAt:  utcNow(),
	}
}

// WithEmbedding returns a copy carrying the embedding vector.
func (c Chunk) WithEmbedding(vec []float32) Chunk {
	c.Embedding = vec
	return c
}
