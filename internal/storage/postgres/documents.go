package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/questforge/questgraph/internal/quest"
	"github.com/questforge/questgraph/internal/repository"
)

const documentsSchemaSQL = `
CREATE TABLE IF NOT EXISTS quest_documents (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL,
    document   JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// DocumentStore implements repository.Repository on a pgx pool. Each
// document is stored whole in a JSONB column.
type DocumentStore struct {
	db *pgxpool.Pool
}

// NewDocumentStore returns a store backed by the given pool.
func NewDocumentStore(db *pgxpool.Pool) *DocumentStore {
	return &DocumentStore{db: db}
}

// Connect opens a pool for dsn and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("questgraph: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("questgraph: ping: %w", err)
	}
	return pool, nil
}

// CreateSchema creates the quest_documents table if it doesn't exist.
func (s *DocumentStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, documentsSchemaSQL)
	return err
}

// Load fetches the document stored under id.
func (s *DocumentStore) Load(ctx context.Context, id string) (*quest.Document, error) {
	var raw []byte
	err := s.db.QueryRow(ctx,
		`SELECT document FROM quest_documents WHERE id = $1`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", repository.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("questgraph: load document %s: %w", id, err)
	}
	return quest.Import(raw)
}

// Save upserts doc under id.
func (s *DocumentStore) Save(ctx context.Context, id string, doc *quest.Document) error {
	raw, err := quest.Export(doc)
	if err != nil {
		return fmt.Errorf("questgraph: encode document %s: %w", id, err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO quest_documents (id, name, document, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, document = EXCLUDED.document, updated_at = NOW()
	`, id, doc.Name, raw)
	if err != nil {
		return fmt.Errorf("questgraph: save document %s: %w", id, err)
	}
	return nil
}
