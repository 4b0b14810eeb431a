package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const documentColumns = `id, type, status, title, body, permalink, modified_at, published_at`

// PostgresStore reads documents and document metadata from PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a PostgresStore on db.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func scanDocument(row pgx.Row) (*Document, error) {
	var d Document
	if err := row.Scan(&d.ID, &d.Type, &d.Status, &d.Title, &d.Body, &d.Permalink, &d.ModifiedAt, &d.PublishedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// Upsert inserts doc or replaces the row with the same id.
func (s *PostgresStore) Upsert(ctx context.Context, doc *Document) error {
	query := `INSERT INTO documents (` + documentColumns + `)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          ON CONFLICT (id) DO UPDATE SET
	            type = EXCLUDED.type, status = EXCLUDED.status, title = EXCLUDED.title,
	            body = EXCLUDED.body, permalink = EXCLUDED.permalink,
	            modified_at = EXCLUDED.modified_at, published_at = EXCLUDED.published_at`
	_, err := s.db.Exec(ctx, query,
		doc.ID, doc.Type, doc.Status, doc.Title, doc.Body, doc.Permalink,
		doc.ModifiedAt.UTC(), doc.PublishedAt.UTC(),
	)
	return err
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// ResolveURL implements Store.
func (s *PostgresStore) ResolveURL(ctx context.Context, url string) (*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	          WHERE permalink <> '' AND rtrim(permalink, '/') = rtrim($1, '/')
	          ORDER BY id LIMIT 1`
	return scanDocument(s.db.QueryRow(ctx, query, url))
}

// ListPublished implements Store.
func (s *PostgresStore) ListPublished(ctx context.Context, docType string) ([]*Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	          WHERE status = $1 AND type = $2
	          ORDER BY published_at, id`
	rows, err := s.db.Query(ctx, query, StatusPublish, docType)
	if err != nil {
		return nil, fmt.Errorf("list published: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// GetMeta implements Store.
func (s *PostgresStore) GetMeta(ctx context.Context, id int64, key string) (string, error) {
	var v string
	err := s.db.QueryRow(ctx,
		`SELECT value FROM document_meta WHERE document_id = $1 AND key = $2`, id, key,
	).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetMeta implements Store.
func (s *PostgresStore) SetMeta(ctx context.Context, id int64, key, value string) error {
	tag, err := s.db.Exec(ctx,
		`INSERT INTO document_meta (document_id, key, value, updated_at)
		 SELECT id, $2, $3, now() FROM documents WHERE id = $1
		 ON CONFLICT (document_id, key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		id, key, value,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
