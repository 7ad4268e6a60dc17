package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notelm/internal/apperr"
	"notelm/internal/domain"
)

// NewPostgres builds the repository set on one pool. The vector index is
// wired separately via the factory so Qdrant can replace it.
func NewPostgres(pool *pgxpool.Pool) Stores {
	return Stores{
		Notebooks:     &pgNotebookStore{db: pool},
		Documents:     &pgDocumentStore{db: pool},
		Chunks:        &pgChunkStore{db: pool},
		Crawls:        &pgCrawlStore{db: pool},
		Conversations: &pgConversationStore{db: pool},
		Evaluations:   &pgEvaluationStore{db: pool},
		Vector:        &pgVectorIndex{db: pool},
		Tx:            &pgTransactor{pool: pool},
	}
}

func nullif(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s TxStores) error) error {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := TxStores{
		Documents: &pgDocumentStore{db: tx},
		Chunks:    &pgChunkStore{db: tx},
	}
	if err := fn(ctx, s); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// --- notebooks ---

type pgNotebookStore struct{ db querier }

func (s *pgNotebookStore) Save(ctx context.Context, n domain.Notebook) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO notebooks (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = EXCLUDED.updated_at`,
		n.ID, n.Name, nullif(n.Description), n.CreatedAt, n.UpdatedAt)
	return err
}

func (s *pgNotebookStore) Get(ctx context.Context, id string) (domain.Notebook, error) {
	var n domain.Notebook
	var desc *string
	err := s.db.QueryRow(ctx,
		`SELECT id, name, description, created_at, updated_at FROM notebooks WHERE id = $1`, id).
		Scan(&n.ID, &n.Name, &desc, &n.CreatedAt, &n.UpdatedAt)
	if err == pgx.ErrNoRows {
		return domain.Notebook{}, apperr.NotFound("notebook not found: %s", id)
	}
	if err != nil {
		return domain.Notebook{}, err
	}
	n.Description = deref(desc)
	return n, nil
}

func (s *pgNotebookStore) List(ctx context.Context) ([]domain.Notebook, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, name, description, created_at, updated_at FROM notebooks ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Notebook
	for rows.Next() {
		var n domain.Notebook
		var desc *string
		if err := rows.Scan(&n.ID, &n.Name, &desc, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		n.Description = deref(desc)
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *pgNotebookStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM notebooks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notebook not found: %s", id)
	}
	return nil
}

// --- documents ---

type pgDocumentStore struct{ db querier }

func (s *pgDocumentStore) Save(ctx context.Context, d domain.Document) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO documents (id, notebook_id, url, title, status, error_message, content_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			content_hash = EXCLUDED.content_hash,
			updated_at = EXCLUDED.updated_at`,
		d.ID, d.NotebookID, d.URL, nullif(d.Title), string(d.Status),
		nullif(d.ErrorMessage), nullif(d.ContentHash), d.CreatedAt, d.UpdatedAt)
	return err
}

const documentColumns = `id, notebook_id, url, title, status, error_message, content_hash, created_at, updated_at`

func scanDocument(row pgx.Row) (domain.Document, error) {
	var d domain.Document
	var title, errMsg, hash *string
	var status string
	err := row.Scan(&d.ID, &d.NotebookID, &d.URL, &title, &status, &errMsg, &hash, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return domain.Document{}, err
	}
	d.Title = deref(title)
	d.Status = domain.DocumentStatus(status)
	d.ErrorMessage = deref(errMsg)
	d.ContentHash = deref(hash)
	return d, nil
}

func (s *pgDocumentStore) Get(ctx context.Context, id string) (domain.Document, error) {
	d, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return domain.Document{}, apperr.NotFound("document not found: %s", id)
	}
	return d, err
}

func (s *pgDocumentStore) FindByNotebookAndURL(ctx context.Context, notebookID, url string) (domain.Document, bool, error) {
	d, err := scanDocument(s.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE notebook_id = $1 AND url = $2`, notebookID, url))
	if err == pgx.ErrNoRows {
		return domain.Document{}, false, nil
	}
	if err != nil {
		return domain.Document{}, false, err
	}
	return d, true, nil
}

func (s *pgDocumentStore) list(ctx context.Context, query string, args ...any) ([]domain.Document, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *pgDocumentStore) ListByNotebook(ctx context.Context, notebookID string) ([]domain.Document, error) {
	return s.list(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE notebook_id = $1 ORDER BY created_at`, notebookID)
}

func (s *pgDocumentStore) ListByStatus(ctx context.Context, notebookID string, status domain.DocumentStatus) ([]domain.Document, error) {
	return s.list(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE notebook_id = $1 AND status = $2 ORDER BY created_at`,
		notebookID, string(status))
}

func (s *pgDocumentStore) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("document not found: %s", id)
	}
	return nil
}
