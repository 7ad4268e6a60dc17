package crawl

import (
	"context"
	"regexp"

	"notelm/internal/background"
	"notelm/internal/domain"
	"notelm/internal/ingest"
	"notelm/internal/observability"
	"notelm/internal/store"
)

type queueEntry struct {
	url   string
	depth int
}

// Service executes crawl jobs: breadth-first from the seed, bounded by
// max_depth and max_pages, creating documents and firing their ingestion.
type Service struct {
	crawls    store.CrawlStore
	docs      store.DocumentStore
	links     *LinkDiscoverer
	ingestion *ingest.Service
	registry  *background.Registry
}

func NewService(crawls store.CrawlStore, docs store.DocumentStore, links *LinkDiscoverer, ingestion *ingest.Service) *Service {
	return &Service{
		crawls:    crawls,
		docs:      docs,
		links:     links,
		ingestion: ingestion,
		registry:  background.NewRegistry("crawl", 2),
	}
}

// StartCrawl validates and persists a new job, then triggers its execution
// in the background.
func (s *Service) StartCrawl(ctx context.Context, notebookID, seedURL string, maxDepth, maxPages int, includePattern, excludePattern string) (domain.CrawlJob, error) {
	job, err := domain.NewCrawlJob(notebookID, seedURL, maxDepth, maxPages, includePattern, excludePattern)
	if err != nil {
		return domain.CrawlJob{}, err
	}
	if err := s.crawls.SaveJob(ctx, job); err != nil {
		return domain.CrawlJob{}, err
	}
	s.Trigger(job)
	return job, nil
}

// Cancel flips the persisted job status to CANCELLED. The executor observes
// it at its next queue pop.
func (s *Service) Cancel(ctx context.Context, crawlJobID string) (domain.CrawlJob, error) {
	job, err := s.crawls.GetJob(ctx, crawlJobID)
	if err != nil {
		return domain.CrawlJob{}, err
	}
	job, err = job.MarkCancelled()
	if err != nil {
		return domain.CrawlJob{}, err
	}
	if err := s.crawls.SaveJob(ctx, job); err != nil {
		return domain.CrawlJob{}, err
	}
	return job, nil
}

// Trigger runs Execute for the job in the background, at most once per id.
func (s *Service) Trigger(job domain.CrawlJob) bool {
	return s.registry.Trigger(job.ID, func(ctx context.Context) {
		_ = s.Execute(ctx, job.ID)
	})
}

// IsCrawling reports whether the job has an in-flight executor.
func (s *Service) IsCrawling(crawlJobID string) bool {
	return s.registry.InFlight(crawlJobID)
}

// WaitForAll blocks until every in-flight crawl finishes.
func (s *Service) WaitForAll() {
	s.registry.WaitForAll()
}

// Execute runs the job to a terminal state. An uncaught failure marks the
// whole job FAILED; per-URL link discovery failures only prune that branch.
func (s *Service) Execute(ctx context.Context, crawlJobID string) error {
	log := observability.LoggerWithTrace(ctx)

	job, err := s.crawls.GetJob(ctx, crawlJobID)
	if err != nil {
		return err
	}
	job, err = job.MarkInProgress()
	if err != nil {
		// A job cancelled before it ever started stays cancelled.
		log.Warn().Str("crawl_job_id", crawlJobID).Err(err).Msg("crawl_not_startable")
		return err
	}
	if err := s.crawls.SaveJob(ctx, job); err != nil {
		return err
	}

	job, bfsErr := s.bfs(ctx, job)
	if job.Status == domain.CrawlCancelled {
		log.Info().Str("crawl_job_id", job.ID).Msg("crawl_cancelled")
		return nil
	}
	if bfsErr != nil {
		log.Error().Str("crawl_job_id", job.ID).Err(bfsErr).Msg("crawl_failed")
		if failed, err := job.MarkFailed(bfsErr.Error()); err == nil {
			job = failed
		}
		return s.crawls.SaveJob(ctx, job)
	}

	if completed, err := job.MarkCompleted(); err == nil {
		job = completed
	}
	log.Info().Str("crawl_job_id", job.ID).
		Int("discovered", job.TotalDiscovered).
		Int("ingested", job.TotalIngested).
		Msg("crawl_completed")
	return s.crawls.SaveJob(ctx, job)
}

func (s *Service) bfs(ctx context.Context, job domain.CrawlJob) (domain.CrawlJob, error) {
	log := observability.LoggerWithTrace(ctx)

	include, exclude, err := compilePatterns(job)
	if err != nil {
		return job, err
	}

	visited := make(map[string]bool)
	queue := []queueEntry{{url: job.SeedURL, depth: 0}}
	pages := 0

	for len(queue) > 0 && pages < job.MaxPages {
		// Refresh the persisted job so an external cancel is honored at
		// every pop.
		if fresh, err := s.crawls.GetJob(ctx, job.ID); err == nil && fresh.Status == domain.CrawlCancelled {
			return fresh, nil
		}

		entry := queue[0]
		queue = queue[1:]

		if visited[entry.url] {
			continue
		}
		if entry.depth > job.MaxDepth {
			continue
		}
		visited[entry.url] = true

		created, err := s.createDocumentIfNew(ctx, &job, entry)
		if err != nil {
			return job, err
		}
		if created {
			pages++
			if pages >= job.MaxPages {
				break
			}
		}

		if entry.depth < job.MaxDepth {
			links, err := s.links.DiscoverLinks(ctx, entry.url, job.Domain, include, exclude)
			if err != nil {
				// The page's own document stays; it just contributes no children.
				log.Warn().Str("crawl_job_id", job.ID).Str("url", entry.url).Err(err).Msg("link_discovery_failed")
				continue
			}
			for _, link := range links {
				if !visited[link.URL] {
					queue = append(queue, queueEntry{url: link.URL, depth: entry.depth + 1})
				}
			}
		}
	}
	return job, nil
}

// createDocumentIfNew persists a document for the URL unless the notebook
// already has one, recording the discovery either way. Returns whether a new
// page was created.
func (s *Service) createDocumentIfNew(ctx context.Context, job *domain.CrawlJob, entry queueEntry) (bool, error) {
	_, exists, err := s.docs.FindByNotebookAndURL(ctx, job.NotebookID, entry.url)
	if err != nil {
		return false, err
	}
	if exists {
		du := domain.NewDiscoveredUrl(entry.url, entry.depth).MarkSkipped()
		return false, s.crawls.SaveDiscovered(ctx, job.ID, du)
	}

	doc := domain.NewDocument(job.NotebookID, entry.url, "")
	if err := s.docs.Save(ctx, doc); err != nil {
		return false, err
	}
	s.ingestion.Trigger(doc)

	du := domain.NewDiscoveredUrl(entry.url, entry.depth).MarkIngested(doc.ID)
	if err := s.crawls.SaveDiscovered(ctx, job.ID, du); err != nil {
		return false, err
	}

	// Rebase the counter bump on the stored row so a cancel that landed
	// since the last pop is not overwritten.
	fresh, err := s.crawls.GetJob(ctx, job.ID)
	if err != nil {
		fresh = *job
	}
	fresh = fresh.IncrementDiscovered().IncrementIngested()
	if err := s.crawls.SaveJob(ctx, fresh); err != nil {
		return false, err
	}
	job.TotalDiscovered = fresh.TotalDiscovered
	job.TotalIngested = fresh.TotalIngested
	return true, nil
}

func compilePatterns(job domain.CrawlJob) (include, exclude *regexp.Regexp, err error) {
	if job.IncludePattern != "" {
		if include, err = regexp.Compile(job.IncludePattern); err != nil {
			return nil, nil, err
		}
	}
	if job.ExcludePattern != "" {
		if exclude, err = regexp.Compile(job.ExcludePattern); err != nil {
			return nil, nil, err
		}
	}
	return include, exclude, nil
}
