package domain

import (
	"time"

	"notelm/internal/apperr"
)

type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "pending"
	DocumentProcessing DocumentStatus = "processing"
	DocumentCompleted  DocumentStatus = "completed"
	DocumentFailed     DocumentStatus = "failed"
)

// Processable reports whether the document may enter the pipeline.
func (s DocumentStatus) Processable() bool { return s == DocumentPending }

// Terminal reports whether the status admits no further pipeline transition.
func (s DocumentStatus) Terminal() bool {
	return s == DocumentCompleted || s == DocumentFailed
}

// Retryable reports whether the document can be reset to pending.
func (s DocumentStatus) Retryable() bool { return s == DocumentFailed }

// Document is a source URL inside a notebook. (notebook_id, url) is unique.
type Document struct {
	ID           string
	NotebookID   string
	URL          string
	Title        string
	Status       DocumentStatus
	ErrorMessage string
	ContentHash  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func NewDocument(notebookID, url, title string) Document {
	now := utcNow()
	return Document{
		ID:         NewID(),
		NotebookID: notebookID,
		URL:        url,
		Title:      title,
		Status:     DocumentPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// MarkProcessing transitions PENDING → PROCESSING.
func (d Document) MarkProcessing() (Document, error) {
	if !d.Status.Processable() {
		return d, apperr.InvalidState("cannot process document in status %s", d.Status)
	}
	d.Status = DocumentProcessing
	d.UpdatedAt = utcNow()
	return d, nil
}

// MarkCompleted transitions PROCESSING → COMPLETED, recording the extracted
// title and content hash.
func (d Document) MarkCompleted(title, contentHash string) (Document, error) {
	if d.Status != DocumentProcessing {
		return d, apperr.InvalidState("cannot complete document in status %s", d.Status)
	}
	d.Status = DocumentCompleted
	if title != "" {
		d.Title = title
	}
	d.ContentHash = contentHash
	d.ErrorMessage = ""
	d.UpdatedAt = utcNow()
	return d, nil
}

// MarkFailed transitions PROCESSING → FAILED with the error message.
func (d Document) MarkFailed(message string) (Document, error) {
	if d.Status != DocumentProcessing {
		return d, apperr.InvalidState("cannot fail document in status %s", d.Status)
	}
	d.Status = DocumentFailed
	d.ErrorMessage = message
	d.UpdatedAt = utcNow()
	return d, nil
}

// Retry resets a FAILED document to PENDING.
func (d Document) Retry() (Document, error) {
	if !d.Status.Retryable() {
		return d, apperr.InvalidState("cannot retry document in status %s", d.Status)
	}
	d.Status = DocumentPending
	d.ErrorMessage = ""
	d.UpdatedAt = utcNow()
	return d, nil
}
