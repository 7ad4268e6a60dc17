package rag

import (
	"context"

	"notelm/internal/domain"
	"notelm/internal/retrieve"
	"notelm/internal/store"
)

// ConversationAnswerer runs the answerer inside a stored conversation:
// recent history feeds the prompt and both turns are appended afterwards.
type ConversationAnswerer struct {
	answerer      *Answerer
	conversations store.ConversationStore
	retrieval     *retrieve.Service
}

func NewConversationAnswerer(answerer *Answerer, conversations store.ConversationStore, retrieval *retrieve.Service) *ConversationAnswerer {
	return &ConversationAnswerer{
		answerer:      answerer,
		conversations: conversations,
		retrieval:     retrieval,
	}
}

// Ask retrieves context for the question, answers with the conversation's
// recent history, and persists the user and assistant turns.
func (c *ConversationAnswerer) Ask(ctx context.Context, conversationID, question string, maxSources int) (Answer, error) {
	conv, err := c.conversations.GetConversation(ctx, conversationID)
	if err != nil {
		return Answer{}, err
	}

	history, err := c.conversations.ListMessages(ctx, conversationID, historyMaxExchanges*2)
	if err != nil {
		return Answer{}, err
	}

	retrieved, err := c.retrieval.Retrieve(ctx, conv.NotebookID, question, maxSources)
	if err != nil {
		return Answer{}, err
	}

	answer, err := c.answerer.Answer(ctx, question, retrieved, history)
	if err != nil {
		return Answer{}, err
	}

	if err := c.conversations.SaveMessage(ctx, domain.NewMessage(conversationID, "user", question)); err != nil {
		return Answer{}, err
	}
	if err := c.conversations.SaveMessage(ctx, domain.NewMessage(conversationID, "assistant", answer.Text)); err != nil {
		return Answer{}, err
	}
	return answer, nil
}
