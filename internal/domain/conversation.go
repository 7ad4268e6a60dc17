package domain

import "time"

// Conversation is a thread of question/answer messages within a notebook.
type Conversation struct {
	ID         string
	NotebookID string
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func NewConversation(notebookID, title string) Conversation {
	now := utcNow()
	return Conversation{ID: NewID(), NotebookID: notebookID, Title: title, CreatedAt: now, UpdatedAt: now}
}

// Message is a single conversation turn. Role is "user" or "assistant".
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

func NewMessage(conversationID, role, content string) Message {
	return Message{ID: NewID(), ConversationID: conversationID, Role: role, Content: content, CreatedAt: utcNow()}
}
