package store

import (
	"context"

	"github.com/jackc/pgx/v5"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

type pgCrawlStore struct{ db querier }

func (s *pgCrawlStore) SaveJob(ctx context.Context, j domain.CrawlJob) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO crawl_jobs (id, notebook_id, seed_url, domain, max_depth, max_pages,
			url_include_pattern, url_exclude_pattern, status, total_discovered, total_ingested,
			error_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			total_discovered = EXCLUDED.total_discovered,
			total_ingested = EXCLUDED.total_ingested,
			error_message = EXCLUDED.error_message,
			updated_at = EXCLUDED.updated_at`,
		j.ID, j.NotebookID, j.SeedURL, j.Domain, j.MaxDepth, j.MaxPages,
		nullif(j.IncludePattern), nullif(j.ExcludePattern), string(j.Status),
		j.TotalDiscovered, j.TotalIngested, nullif(j.ErrorMessage), j.CreatedAt, j.UpdatedAt)
	return err
}

const crawlJobColumns = `id, notebook_id, seed_url, domain, max_depth, max_pages,
	url_include_pattern, url_exclude_pattern, status, total_discovered, total_ingested,
	error_message, created_at, updated_at`

func scanCrawlJob(row pgx.Row) (domain.CrawlJob, error) {
	var j domain.CrawlJob
	var include, exclude, errMsg *string
	var status string
	err := row.Scan(&j.ID, &j.NotebookID, &j.SeedURL, &j.Domain, &j.MaxDepth, &j.MaxPages,
		&include, &exclude, &status, &j.TotalDiscovered, &j.TotalIngested,
		&errMsg, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return domain.CrawlJob{}, err
	}
	j.IncludePattern = deref(include)
	j.ExcludePattern = deref(exclude)
	j.Status = domain.CrawlJobStatus(status)
	j.ErrorMessage = deref(errMsg)
	return j, nil
}

func (s *pgCrawlStore) GetJob(ctx context.Context, id string) (domain.CrawlJob, error) {
	j, err := scanCrawlJob(s.db.QueryRow(ctx,
		`SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return domain.CrawlJob{}, apperr.NotFound("crawl job not found: %s", id)
	}
	return j, err
}

func (s *pgCrawlStore) ListJobsByNotebook(ctx context.Context, notebookID string) ([]domain.CrawlJob, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+crawlJobColumns+` FROM crawl_jobs WHERE notebook_id = $1 ORDER BY created_at`, notebookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CrawlJob
	for rows.Next() {
		j, err := scanCrawlJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *pgCrawlStore) SaveDiscovered(ctx context.Context, crawlJobID string, du domain.DiscoveredUrl) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO crawl_discovered_urls (crawl_job_id, url, depth, status, document_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (crawl_job_id, url) DO UPDATE SET
			status = EXCLUDED.status,
			document_id = EXCLUDED.document_id`,
		crawlJobID, du.URL, du.Depth, string(du.Status), nullif(du.DocumentID), du.CreatedAt)
	return err
}

func (s *pgCrawlStore) ListDiscovered(ctx context.Context, crawlJobID string) ([]domain.DiscoveredUrl, error) {
	rows, err := s.db.Query(ctx, `
		SELECT url, depth, status, document_id, created_at
		FROM crawl_discovered_urls WHERE crawl_job_id = $1 ORDER BY created_at`, crawlJobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DiscoveredUrl
	for rows.Next() {
		var du domain.DiscoveredUrl
		var status string
		var docID *string
		if err := rows.Scan(&du.URL, &du.Depth, &status, &docID, &du.CreatedAt); err != nil {
			return nil, err
		}
		du.Status = domain.DiscoveredUrlStatus(status)
		du.DocumentID = deref(docID)
		out = append(out, du)
	}
	return out, rows.Err()
}

type pgConversationStore struct{ db querier }

func (s *pgConversationStore) SaveConversation(ctx context.Context, c domain.Conversation) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO conversations (id, notebook_id, title, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title, updated_at = EXCLUDED.updated_at`,
		c.ID, c.NotebookID, nullif(c.Title), c.CreatedAt, c.UpdatedAt)
	return err
}

func (s *pgConversationStore) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	var c domain.Conversation
	var title *string
	err := s.db.QueryRow(ctx,
		`SELECT id, notebook_id, title, created_at, updated_at FROM conversations WHERE id = $1`, id).
		Scan(&c.ID, &c.NotebookID, &title, &c.CreatedAt, &c.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Conversation{}, apperr.NotFound("conversation not found: %s", id)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	c.Title = deref(title)
	return c, nil
}

func (s *pgConversationStore) SaveMessage(ctx context.Context, m domain.Message) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		m.ID, m.ConversationID, m.Role, m.Content, m.CreatedAt)
	return err
}

func (s *pgConversationStore) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at`, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
