package rag

import (
	"fmt"
	"strings"

	"notelm/internal/domain"
	"notelm/internal/retrieve"
)

const systemPrompt = `You are a helpful research assistant that answers questions based ONLY on the provided source materials.

CRITICAL RULES:
1. Answer ONLY using information from the provided sources
2. EVERY factual claim MUST have a citation in the format [1], [2], etc.
3. If the answer is not in the sources, say "I cannot find this information in the provided sources."
4. Do NOT make up information or use your training knowledge
5. Be concise and direct in your answers
6. Use multiple citations if a statement draws from multiple sources

Citation format:
- Use [1], [2], etc. inline with the text
- Each number corresponds to a source provided to you
- A single sentence may have multiple citations if it synthesizes multiple sources

Example:
"The project was started in 2020 [1] and has grown to over 1000 contributors [2]."`

const (
	historyMaxExchanges  = 5
	historyMaxMsgLength  = 500
	noInformationAnswer  = "I cannot find any relevant information in the sources to answer this question."
	citationSnippetChars = 200
)

// formatSources renders the numbered source block; source i is 1-based.
func formatSources(retrieved []retrieve.RetrievedChunk) string {
	parts := make([]string, 0, len(retrieved))
	for i, rc := range retrieved {
		title := rc.Document.Title
		if title == "" {
			title = "Untitled"
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\nURL: %s\n\n%s\n", i+1, title, rc.Document.URL, rc.Chunk.Content))
	}
	return strings.Join(parts, "\n---\n")
}

func formatUserPrompt(question, sourcesText, historyContext string) string {
	return fmt.Sprintf(`%sBased on the following sources, answer this question: %s

SOURCES:
%s

Remember: Use citations [1], [2], etc. for every factual claim. If the information is not in the sources, say so.`,
		historyContext, question, sourcesText)
}

// formatConversationContext renders a truncated transcript: the last
// historyMaxExchanges exchanges, each message capped at historyMaxMsgLength
// characters.
func formatConversationContext(history []domain.Message) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > historyMaxExchanges*2 {
		history = history[len(history)-historyMaxExchanges*2:]
	}

	parts := []string{"PREVIOUS CONVERSATION:"}
	for _, m := range history {
		parts = append(parts, strings.ToUpper(m.Role)+": "+truncateRunes(m.Content, historyMaxMsgLength))
	}
	parts = append(parts, "\nNow answer the current question:\n")
	return strings.Join(parts, "\n")
}

// truncateRunes caps s at max characters, never splitting a multi-byte rune,
// and appends an ellipsis when anything was cut.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
