package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"

	"notelm/internal/domain"
	"notelm/internal/llm"
	"notelm/internal/observability"
)

const generatorSystemPrompt = `You are a test data generator for a retrieval evaluation system.
Your task is to generate diverse, realistic questions that can be answered from the given passage.

Rules:
- Questions must be self-contained (do not reference "the passage", "the text", "the above", etc.)
- Do not generate yes/no questions
- Generate diverse question types: factual, analytical, comparative, explanatory
- Label each question's difficulty as one of: factual, analytical, inferential, paraphrased, multi_hop
- Questions should require information specifically from the passage to answer
- Return valid JSON only`

const generatorUserTemplate = `Based on the following passage, generate exactly %d questions that can be answered using the information in this passage.

Passage:
%s

Return your response as a JSON object with this exact format:
{"questions": [{"text": "question 1", "difficulty": "factual"}, ...]}`

// Generator produces synthetic test cases from chunk content.
type Generator struct {
	provider llm.Provider
	model    string
	rng      *rand.Rand
}

// NewGenerator seeds chunk sampling so dataset generation is reproducible.
func NewGenerator(provider llm.Provider, model string, seed int64) *Generator {
	return &Generator{
		provider: provider,
		model:    model,
		rng:      rand.New(rand.NewSource(seed)),
	}
}

// SampleChunks picks up to maxSample chunks uniformly at random.
func (g *Generator) SampleChunks(chunks []domain.Chunk, maxSample int) []domain.Chunk {
	if len(chunks) <= maxSample {
		return chunks
	}
	idx := g.rng.Perm(len(chunks))[:maxSample]
	out := make([]domain.Chunk, 0, maxSample)
	for _, i := range idx {
		out = append(out, chunks[i])
	}
	return out
}

type generatedQuestion struct {
	Text       string
	Difficulty domain.Difficulty
}

// GenerateQuestions asks the LLM for count questions answerable from the
// chunk. Failures yield an empty list, never an error.
func (g *Generator) GenerateQuestions(ctx context.Context, chunk domain.Chunk, count int) []generatedQuestion {
	log := observability.LoggerWithTrace(ctx)
	prompt := fmt.Sprintf(generatorUserTemplate, count, chunk.Content)

	raw, err := g.provider.Chat(ctx, g.model, generatorSystemPrompt, prompt)
	if err != nil {
		log.Warn().Str("chunk_id", chunk.ID).Err(err).Msg("question_generation_failed")
		return nil
	}
	questions := parseQuestions(raw)
	if questions == nil {
		log.Warn().Str("chunk_id", chunk.ID).Str("output", truncateForLog(raw)).Msg("question_parse_failed")
	}
	return questions
}

// parseQuestions tolerates both plain strings and {text, difficulty}
// objects; invalid or missing difficulty maps to no label.
func parseQuestions(output string) []generatedQuestion {
	var payload struct {
		Questions []json.RawMessage `json:"questions"`
	}
	if err := json.Unmarshal([]byte(llm.StripFence(output)), &payload); err != nil {
		return nil
	}

	var out []generatedQuestion
	for _, raw := range payload.Questions {
		var plain string
		if err := json.Unmarshal(raw, &plain); err == nil {
			if plain != "" {
				out = append(out, generatedQuestion{Text: plain})
			}
			continue
		}
		var obj struct {
			Text       string `json:"text"`
			Difficulty string `json:"difficulty"`
		}
		if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
			out = append(out, generatedQuestion{
				Text:       obj.Text,
				Difficulty: domain.ParseDifficulty(obj.Difficulty),
			})
		}
	}
	return out
}

// GenerateTestCases samples chunks and builds one test case per generated
// question, each grounded on its source chunk.
func (g *Generator) GenerateTestCases(ctx context.Context, chunks []domain.Chunk, questionsPerChunk, maxChunksSample int) []domain.TestCase {
	sampled := g.SampleChunks(chunks, maxChunksSample)

	var cases []domain.TestCase
	for _, chunk := range sampled {
		for _, q := range g.GenerateQuestions(ctx, chunk, questionsPerChunk) {
			cases = append(cases, domain.NewTestCase(q.Text, []string{chunk.ID}, chunk.ID, q.Difficulty))
		}
	}
	return cases
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200]
	}
	return s
}
