// Package llm wraps chat-completion providers behind a minimal contract:
// system prompt in, user prompt in, text out. Structured outputs are parsed
// by the callers with markdown-fence tolerance.
package llm

import (
	"context"
	"strings"
)

// Provider is the chat contract consumed by the RAG answerer, the test
// generator, and the judge.
type Provider interface {
	// Chat sends one system/user prompt pair. An empty model selects the
	// provider's default.
	Chat(ctx context.Context, model, systemPrompt, userPrompt string) (string, error)
}

// StripFence removes a surrounding markdown code fence (```lang ... ```)
// from LLM output, leaving other text untouched.
func StripFence(s string) string {
	cleaned := strings.TrimSpace(s)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	lines := strings.Split(cleaned, "\n")
	if len(lines) < 3 {
		return cleaned
	}
	last := len(lines) - 1
	if strings.TrimSpace(lines[last]) != "```" {
		return cleaned
	}
	return strings.TrimSpace(strings.Join(lines[1:last], "\n"))
}
