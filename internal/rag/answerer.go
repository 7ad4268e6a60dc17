// Package rag composes grounded answers with inline [n] citations resolved
// back to the retrieved chunks.
package rag

import (
	"context"
	"regexp"
	"strconv"

	"notelm/internal/domain"
	"notelm/internal/llm"
	"notelm/internal/observability"
	"notelm/internal/retrieve"
)

// Citation resolves one [k] marker in the answer back to its source span.
type Citation struct {
	CitationIndex int
	DocumentID    string
	ChunkID       string
	DocumentTitle string
	DocumentURL   string
	CharStart     int
	CharEnd       int
	Snippet       string
}

// Answer is the answerer's output.
type Answer struct {
	Text        string
	Citations   []Citation
	SourcesUsed int
}

// Answerer prompts the LLM with the retrieved sources and extracts the
// citations the model emitted.
type Answerer struct {
	provider llm.Provider
	model    string
}

func NewAnswerer(provider llm.Provider, model string) *Answerer {
	return &Answerer{provider: provider, model: model}
}

// Answer generates a cited answer for the question. With nothing retrieved
// it returns the fixed no-information answer and no citations.
func (a *Answerer) Answer(ctx context.Context, question string, retrieved []retrieve.RetrievedChunk, history []domain.Message) (Answer, error) {
	if len(retrieved) == 0 {
		return Answer{Text: noInformationAnswer}, nil
	}

	userPrompt := formatUserPrompt(question, formatSources(retrieved), formatConversationContext(history))
	text, err := a.provider.Chat(ctx, a.model, systemPrompt, userPrompt)
	if err != nil {
		return Answer{}, err
	}

	citations := ExtractCitations(text, retrieved)
	observability.LoggerWithTrace(ctx).Debug().
		Int("sources", len(retrieved)).
		Int("citations", len(citations)).
		Msg("rag_answer_ok")

	return Answer{
		Text:        text,
		Citations:   citations,
		SourcesUsed: len(retrieved),
	}, nil
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// ExtractCitations scans the answer for [k] markers and builds one citation
// per distinct in-range index, ordered by first mention. Out-of-range
// indices are ignored.
func ExtractCitations(answer string, retrieved []retrieve.RetrievedChunk) []Citation {
	matches := citationPattern.FindAllStringSubmatch(answer, -1)

	seen := make(map[int]bool)
	var citations []Citation
	for _, m := range matches {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 1 || idx > len(retrieved) || seen[idx] {
			continue
		}
		seen[idx] = true

		rc := retrieved[idx-1]
		snippet := truncateRunes(rc.Chunk.Content, citationSnippetChars)
		citations = append(citations, Citation{
			CitationIndex: idx,
			DocumentID:    rc.Document.ID,
			ChunkID:       rc.Chunk.ID,
			DocumentTitle: rc.Document.Title,
			DocumentURL:   rc.Document.URL,
			CharStart:     rc.Chunk.CharStart,
			CharEnd:       rc.Chunk.CharEnd,
			Snippet:       snippet,
		})
	}
	return citations
}
