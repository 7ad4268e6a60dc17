package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"notelm/internal/domain"
	"notelm/internal/llm"
	"notelm/internal/observability"
)

const faithfulnessSystemPrompt = `You are an evaluation agent that assesses whether a generated answer is grounded in the provided context chunks.

Your task: Score faithfulness on a scale of 0.0 to 1.0:
- 1.0: Answer is fully grounded in the context, no hallucinations
- 0.5: Answer is partially grounded, contains some unsupported claims
- 0.0: Answer contradicts context or is entirely hallucinated

Return only valid JSON: {"score": <float>, "reasoning": "<brief explanation>"}`

const relevancySystemPrompt = `You are an evaluation agent that assesses whether a generated answer is relevant to the question.

Your task: Score answer relevancy on a scale of 0.0 to 1.0:
- 1.0: Answer directly and completely addresses the question
- 0.5: Answer is partially relevant but incomplete or tangential
- 0.0: Answer does not address the question

Return only valid JSON: {"score": <float>, "reasoning": "<brief explanation>"}`

const citationSupportSystemPrompt = `You are an evaluation agent that assesses whether a cited source genuinely supports the claim it is cited for.

Your task: Score citation support on a scale of 0.0 to 1.0:
- 1.0: The cited source directly and completely supports the claim
- 0.5: The cited source partially supports or is tangentially related
- 0.0: The cited source does not support the claim at all

Return only valid JSON: {"score": <float>, "reasoning": "<brief explanation>"}`

const hallucinationSystemPrompt = `You are an evaluation agent that performs claim-level hallucination analysis.

Your task: Decompose the answer into atomic claims and verify each against the context.
For each claim, classify as:
- "supported": Claim is directly supported by context
- "partially_supported": Claim is partially supported
- "contradicted": Claim contradicts the context
- "fabricated": Claim has no basis in context
- "unverifiable": Cannot be verified from context

Return only valid JSON: {"claims": [{"claim_text": "<text>", "verdict": "<verdict>", "supporting_chunks": [<indices>], "reasoning": "<brief>"}, ...]}`

const completenessSystemPrompt = `You are an evaluation agent that assesses how comprehensively an answer uses the relevant information from the provided context.

Your task: Score answer completeness on a scale of 0.0 to 1.0:
- 1.0: Answer comprehensively uses all relevant information from context
- 0.5: Answer uses some relevant information but misses key details
- 0.0: Answer fails to use relevant context information

Return only valid JSON: {"score": <float>, "reasoning": "<brief explanation>"}`

// ClaimVerdict classifies one atomic claim of an answer.
type ClaimVerdict struct {
	ClaimText        string `json:"claim_text"`
	Verdict          string `json:"verdict"`
	SupportingChunks []int  `json:"supporting_chunks"`
	Reasoning        string `json:"reasoning"`
}

// Hallucinated reports whether the verdict counts against grounding.
func (c ClaimVerdict) Hallucinated() bool {
	return c.Verdict == "contradicted" || c.Verdict == "fabricated"
}

// Judge scores generated answers with the evaluation model. Scores are
// clamped to [0,1]; parse and provider failures return zeros, never errors.
type Judge struct {
	provider llm.Provider
	model    string
}

func NewJudge(provider llm.Provider, model string) *Judge {
	return &Judge{provider: provider, model: model}
}

// ScoreFaithfulness rates how well the answer is grounded in the context.
func (j *Judge) ScoreFaithfulness(ctx context.Context, question, answer string, contextChunks []domain.Chunk) float64 {
	prompt := fmt.Sprintf("Question: %s\n\nGenerated Answer: %s\n\nContext Chunks:\n%s\n\nScore the faithfulness of the answer based on the context.",
		question, answer, numberedContext(contextChunks))
	return j.score(ctx, faithfulnessSystemPrompt, prompt, "faithfulness")
}

// ScoreAnswerRelevancy rates topical match between answer and question.
func (j *Judge) ScoreAnswerRelevancy(ctx context.Context, question, answer string) float64 {
	prompt := fmt.Sprintf("Question: %s\n\nGenerated Answer: %s\n\nScore the relevancy of the answer to the question.", question, answer)
	return j.score(ctx, relevancySystemPrompt, prompt, "relevancy")
}

// ScoreCitationSupport rates whether the cited chunk backs the claim.
func (j *Judge) ScoreCitationSupport(ctx context.Context, claim, citedChunkContent string) float64 {
	prompt := fmt.Sprintf("Claim: %s\n\nCited Source Content: %s\n\nScore how well the cited source supports the claim.", claim, citedChunkContent)
	return j.score(ctx, citationSupportSystemPrompt, prompt, "citation_support")
}

// ScoreAnswerCompleteness rates coverage of the relevant context.
func (j *Judge) ScoreAnswerCompleteness(ctx context.Context, question, answer string, contextChunks []domain.Chunk) float64 {
	prompt := fmt.Sprintf("Question: %s\n\nGenerated Answer: %s\n\nContext Chunks:\n%s\n\nScore how comprehensively the answer uses the relevant information from the context.",
		question, answer, numberedContext(contextChunks))
	return j.score(ctx, completenessSystemPrompt, prompt, "completeness")
}

// AnalyzeHallucinations decomposes the answer into claims with verdicts.
// Failures return an empty list.
func (j *Judge) AnalyzeHallucinations(ctx context.Context, question, answer string, contextChunks []domain.Chunk) []ClaimVerdict {
	log := observability.LoggerWithTrace(ctx)
	prompt := fmt.Sprintf("Question: %s\n\nGenerated Answer: %s\n\nContext Chunks:\n%s\n\nDecompose the answer into atomic claims and verify each against the context.",
		question, answer, numberedContext(contextChunks))

	raw, err := j.provider.Chat(ctx, j.model, hallucinationSystemPrompt, prompt)
	if err != nil {
		log.Warn().Err(err).Msg("judge_hallucination_failed")
		return nil
	}

	var payload struct {
		Claims []ClaimVerdict `json:"claims"`
	}
	if err := json.Unmarshal([]byte(llm.StripFence(raw)), &payload); err != nil {
		log.Warn().Str("output", truncateForLog(raw)).Msg("judge_claims_parse_failed")
		return nil
	}
	return payload.Claims
}

func (j *Judge) score(ctx context.Context, system, user, metric string) float64 {
	log := observability.LoggerWithTrace(ctx)
	raw, err := j.provider.Chat(ctx, j.model, system, user)
	if err != nil {
		log.Warn().Str("metric", metric).Err(err).Msg("judge_score_failed")
		return 0
	}
	return parseScore(raw)
}

// parseScore reads {"score": x} from untrusted LLM output, clamped to [0,1].
func parseScore(raw string) float64 {
	var payload struct {
		Score float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(llm.StripFence(raw)), &payload); err != nil {
		return 0
	}
	if payload.Score < 0 {
		return 0
	}
	if payload.Score > 1 {
		return 1
	}
	return payload.Score
}

func numberedContext(chunks []domain.Chunk) string {
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		parts = append(parts, fmt.Sprintf("[%d] %s", i+1, c.Content))
	}
	return strings.Join(parts, "\n\n")
}
