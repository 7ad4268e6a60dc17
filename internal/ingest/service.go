package ingest

import (
	"context"

	"notelm/internal/apperr"
	"notelm/internal/background"
	"notelm/internal/domain"
	"notelm/internal/store"
)

// Service owns source registration and fire-and-forget ingestion.
type Service struct {
	notebooks store.NotebookStore
	docs      store.DocumentStore
	pipeline  *Pipeline
	registry  *background.Registry
}

func NewService(notebooks store.NotebookStore, docs store.DocumentStore, pipeline *Pipeline, maxWorkers int) *Service {
	return &Service{
		notebooks: notebooks,
		docs:      docs,
		pipeline:  pipeline,
		registry:  background.NewRegistry("ingestion", maxWorkers),
	}
}

// AddSource registers a URL in the notebook and triggers background
// ingestion. Duplicate URLs within a notebook are a validation error.
func (s *Service) AddSource(ctx context.Context, notebookID, url string) (domain.Document, error) {
	if _, err := s.notebooks.Get(ctx, notebookID); err != nil {
		return domain.Document{}, err
	}
	if _, exists, err := s.docs.FindByNotebookAndURL(ctx, notebookID, url); err != nil {
		return domain.Document{}, err
	} else if exists {
		return domain.Document{}, apperr.Validation("url already exists in notebook: %s", url)
	}

	doc := domain.NewDocument(notebookID, url, "")
	if err := s.docs.Save(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	s.Trigger(doc)
	return doc, nil
}

// RetrySource resets a FAILED document and re-triggers ingestion.
func (s *Service) RetrySource(ctx context.Context, documentID string) (domain.Document, error) {
	doc, err := s.docs.Get(ctx, documentID)
	if err != nil {
		return domain.Document{}, err
	}
	doc, err = doc.Retry()
	if err != nil {
		return domain.Document{}, err
	}
	if err := s.docs.Save(ctx, doc); err != nil {
		return domain.Document{}, err
	}
	s.Trigger(doc)
	return doc, nil
}

// Trigger starts background processing for the document. A document already
// in flight is left alone.
func (s *Service) Trigger(doc domain.Document) bool {
	return s.registry.Trigger(doc.ID, func(ctx context.Context) {
		s.pipeline.Process(ctx, doc)
	})
}

// IsProcessing reports whether the document has an in-flight task.
func (s *Service) IsProcessing(documentID string) bool {
	return s.registry.InFlight(documentID)
}

// WaitForAll blocks until every in-flight ingestion finishes. It never
// returns an error; task failures land on the documents.
func (s *Service) WaitForAll() {
	s.registry.WaitForAll()
}
