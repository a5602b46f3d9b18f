// Package registry tracks ingested documents in PostgreSQL. The vector
// store holds chunk content and embeddings; the registry holds the
// per-document bookkeeping that makes ingestion idempotent: source,
// content hash, chunk count, and indexing status.
package registry

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("document not found")

// Document indexing statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusFailed     = "failed"
)

// Document represents an ingested document
type Document struct {
	ID           uuid.UUID         `json:"id"`
	Collection   string            `json:"collection"`
	Source       string            `json:"source"`
	Title        string            `json:"title"`
	ContentHash  string            `json:"content_hash"`
	ChunkCount   int               `json:"chunk_count"`
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// Registry defines operations for document persistence
type Registry interface {
	Create(ctx context.Context, doc *Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByHash(ctx context.Context, collection, hash string) (*Document, error)
	List(ctx context.Context, collection, status string, limit, offset int) ([]*Document, int, error)
	Update(ctx context.Context, doc *Document) error
	Delete(ctx context.Context, id uuid.UUID) error
	Close()
}
