package domain

import (
	"net/url"
	"regexp"
	"time"

	"notelm/internal/apperr"
)

type CrawlJobStatus string

const (
	CrawlPending    CrawlJobStatus = "pending"
	CrawlInProgress CrawlJobStatus = "in_progress"
	CrawlCompleted  CrawlJobStatus = "completed"
	CrawlFailed     CrawlJobStatus = "failed"
	CrawlCancelled  CrawlJobStatus = "cancelled"
)

func (s CrawlJobStatus) Terminal() bool {
	return s == CrawlCompleted || s == CrawlFailed || s == CrawlCancelled
}

// Cancellable reports whether a cancel request is legal in this status.
func (s CrawlJobStatus) Cancellable() bool {
	return s == CrawlPending || s == CrawlInProgress
}

// CrawlJob is a bounded breadth-first traversal of a seed URL. The domain is
// the host of the seed; only same-host links are followed.
type CrawlJob struct {
	ID              string
	NotebookID      string
	SeedURL         string
	Domain          string
	MaxDepth        int
	MaxPages        int
	IncludePattern  string
	ExcludePattern  string
	Status          CrawlJobStatus
	TotalDiscovered int
	TotalIngested   int
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewCrawlJob validates the crawl parameters and derives the domain from the
// seed URL. Bad inputs return apperr.Validation.
func NewCrawlJob(notebookID, seedURL string, maxDepth, maxPages int, includePattern, excludePattern string) (CrawlJob, error) {
	u, err := url.Parse(seedURL)
	if err != nil || u.Hostname() == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return CrawlJob{}, apperr.Validation("seed_url must be an absolute http(s) URL: %s", seedURL)
	}
	if maxDepth < 1 {
		return CrawlJob{}, apperr.Validation("max_depth must be >= 1, got %d", maxDepth)
	}
	if maxPages < 1 {
		return CrawlJob{}, apperr.Validation("max_pages must be >= 1, got %d", maxPages)
	}
	if includePattern != "" {
		if _, err := regexp.Compile(includePattern); err != nil {
			return CrawlJob{}, apperr.Validation("invalid url_include_pattern: %v", err)
		}
	}
	if excludePattern != "" {
		if _, err := regexp.Compile(excludePattern); err != nil {
			return CrawlJob{}, apperr.Validation("invalid url_exclude_pattern: %v", err)
		}
	}

	now := utcNow()
	return CrawlJob{
		ID:             NewID(),
		NotebookID:     notebookID,
		SeedURL:        seedURL,
		Domain:         u.Hostname(),
		MaxDepth:       maxDepth,
		MaxPages:       maxPages,
		IncludePattern: includePattern,
		ExcludePattern: excludePattern,
		Status:         CrawlPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (j CrawlJob) MarkInProgress() (CrawlJob, error) {
	if j.Status != CrawlPending {
		return j, apperr.InvalidState("cannot start crawl in status %s", j.Status)
	}
	j.Status = CrawlInProgress
	j.UpdatedAt = utcNow()
	return j, nil
}

func (j CrawlJob) MarkCompleted() (CrawlJob, error) {
	if j.Status != CrawlInProgress {
		return j, apperr.InvalidState("cannot complete crawl in status %s", j.Status)
	}
	j.Status = CrawlCompleted
	j.UpdatedAt = utcNow()
	return j, nil
}

func (j CrawlJob) MarkFailed(message string) (CrawlJob, error) {
	if j.Status != CrawlInProgress {
		return j, apperr.InvalidState("cannot fail crawl in status %s", j.Status)
	}
	j.Status = CrawlFailed
	j.ErrorMessage = message
	j.UpdatedAt = utcNow()
	return j, nil
}

// MarkCancelled is legal from PENDING or IN_PROGRESS; terminal states reject it.
func (j CrawlJob) MarkCancelled() (CrawlJob, error) {
	if !j.Status.Cancellable() {
		return j, apperr.InvalidState("cannot cancel crawl in status %s", j.Status)
	}
	j.Status = CrawlCancelled
	j.UpdatedAt = utcNow()
	return j, nil
}

func (j CrawlJob) IncrementDiscovered() CrawlJob {
	j.TotalDiscovered++
	j.UpdatedAt = utcNow()
	return j
}

func (j CrawlJob) IncrementIngested() CrawlJob {
	j.TotalIngested++
	j.UpdatedAt = utcNow()
	return j
}

type DiscoveredUrlStatus string

const (
	DiscoveredPending  DiscoveredUrlStatus = "pending"
	DiscoveredIngested DiscoveredUrlStatus = "ingested"
	DiscoveredSkipped  DiscoveredUrlStatus = "skipped"
	DiscoveredFailed   DiscoveredUrlStatus = "failed"
)

// DiscoveredUrl records one URL encountered by a crawl job.
// (crawl_job_id, url) is unique.
type DiscoveredUrl struct {
	URL        string
	Depth      int
	Status     DiscoveredUrlStatus
	DocumentID string // empty unless ingested
	CreatedAt  time.Time
}

func NewDiscoveredUrl(url string, depth int) DiscoveredUrl {
	return DiscoveredUrl{URL: url, Depth: depth, Status: DiscoveredPending, CreatedAt: utcNow()}
}

func (d DiscoveredUrl) MarkIngested(documentID string) DiscoveredUrl {
	d.Status = DiscoveredIngested
	d.DocumentID = documentID
	return d
}

func (d DiscoveredUrl) MarkSkipped() DiscoveredUrl {
	d.Status = DiscoveredSkipped
	return d
}

func (d DiscoveredUrl) MarkFailed() DiscoveredUrl {
	d.Status = DiscoveredFailed
	return d
}
