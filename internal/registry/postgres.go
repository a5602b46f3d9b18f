package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            UUID PRIMARY KEY,
	collection    TEXT NOT NULL,
	source        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	content_hash  TEXT NOT NULL,
	chunk_count   INT NOT NULL DEFAULT 0,
	status        TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	metadata      JSONB NOT NULL DEFAULT '{}',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS documents_collection_hash_idx ON documents (collection, content_hash);
CREATE INDEX IF NOT EXISTS documents_status_idx ON documents (status);
`

// Postgres implements Registry backed by a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to PostgreSQL and ensures the documents table exists
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Create creates a new document record
func (p *Postgres) Create(ctx context.Context, doc *Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, collection, source, title, content_hash, chunk_count, status, error_message, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = p.pool.Exec(ctx, query,
		doc.ID, doc.Collection, doc.Source, doc.Title, doc.ContentHash,
		doc.ChunkCount, doc.Status, doc.ErrorMessage, metadataJSON,
		doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetByID retrieves a document by ID
func (p *Postgres) GetByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	query := `
		SELECT id, collection, source, title, content_hash, chunk_count, status, error_message, metadata, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	return p.scanDocument(ctx, query, id)
}

// GetByHash retrieves a document by content hash within a collection
func (p *Postgres) GetByHash(ctx context.Context, collection, hash string) (*Document, error) {
	query := `
		SELECT id, collection, source, title, content_hash, chunk_count, status, error_message, metadata, created_at, updated_at
		FROM documents
		WHERE collection = $1 AND content_hash = $2
	`
	return p.scanDocument(ctx, query, collection, hash)
}

func (p *Postgres) scanDocument(ctx context.Context, query string, args ...any) (*Document, error) {
	var doc Document
	var metadataJSON []byte

	err := p.pool.QueryRow(ctx, query, args...).Scan(
		&doc.ID, &doc.Collection, &doc.Source, &doc.Title, &doc.ContentHash,
		&doc.ChunkCount, &doc.Status, &doc.ErrorMessage, &metadataJSON,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.Metadata = make(map[string]string)
	if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}

	return &doc, nil
}

// List retrieves documents in a collection with pagination
func (p *Postgres) List(ctx context.Context, collection, status string, limit, offset int) ([]*Document, int, error) {
	// Build query with optional status filter
	countQuery := `SELECT COUNT(*) FROM documents WHERE collection = $1`
	listQuery := `
		SELECT id, collection, source, title, content_hash, chunk_count, status, error_message, metadata, created_at, updated_at
		FROM documents
		WHERE collection = $1
	`
	args := []any{collection}

	if status != "" {
		countQuery += ` AND status = $2`
		listQuery += ` AND status = $2`
		args = append(args, status)
	}

	listQuery += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)

	// Get total count
	var total int
	if err := p.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	// Get documents
	args = append(args, limit, offset)
	rows, err := p.pool.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		var metadataJSON []byte
		if err := rows.Scan(&doc.ID, &doc.Collection, &doc.Source, &doc.Title, &doc.ContentHash,
			&doc.ChunkCount, &doc.Status, &doc.ErrorMessage, &metadataJSON,
			&doc.CreatedAt, &doc.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan document: %w", err)
		}
		doc.Metadata = make(map[string]string)
		if err := json.Unmarshal(metadataJSON, &doc.Metadata); err != nil {
			return nil, 0, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		docs = append(docs, &doc)
	}

	return docs, total, nil
}

// Update updates a document record
func (p *Postgres) Update(ctx context.Context, doc *Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		UPDATE documents
		SET source = $2, title = $3, content_hash = $4, chunk_count = $5,
		    status = $6, error_message = $7, metadata = $8, updated_at = NOW()
		WHERE id = $1
	`
	result, err := p.pool.Exec(ctx, query,
		doc.ID, doc.Source, doc.Title, doc.ContentHash,
		doc.ChunkCount, doc.Status, doc.ErrorMessage, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete deletes a document record
func (p *Postgres) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := p.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the connection pool
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ensure Postgres implements the interface
var _ Registry = (*Postgres)(nil)
