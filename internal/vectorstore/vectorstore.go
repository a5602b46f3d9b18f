// Package vectorstore provides vector similarity search with pooled
// connections, retries and a circuit breaker in front of Qdrant.
package vectorstore

import (
	"context"
)

// Chunk represents a document chunk with its embedding
type Chunk struct {
	ID         string
	DocumentID string
	Content    string
	Vector     []float32
	Metadata   map[string]string
}

// SearchResult represents a search result from the vector store
type SearchResult struct {
	ID         string
	DocumentID string
	Content    string
	Score      float32
	Metadata   map[string]string
}

// VectorStore defines the interface for vector storage operations
type VectorStore interface {
	// EnsureCollection creates the collection if it does not exist yet
	EnsureCollection(ctx context.Context, collection string, dimension int) error

	// CollectionExists checks if a collection exists
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// DeleteCollection deletes a collection
	DeleteCollection(ctx context.Context, collection string) error

	// Upsert inserts or updates chunks in the vector store
	Upsert(ctx context.Context, collection string, chunks []Chunk) error

	// Search performs similarity search, returning at most topK results
	// ordered by descending score. minScore of 0 disables the threshold.
	// A non-empty filter restricts results to points whose payload
	// matches every key/value pair.
	Search(ctx context.Context, collection string, vector []float32, topK int, minScore float32, filter map[string]string) ([]SearchResult, error)

	// DeleteByDocument removes all chunks belonging to a document
	DeleteByDocument(ctx context.Context, collection string, documentID string) error

	// HealthCheck verifies the store is reachable
	HealthCheck(ctx context.Context) error

	// Close releases held connections
	Close() error
}
