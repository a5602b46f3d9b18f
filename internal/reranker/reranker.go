// Package reranker provides re-ranking capabilities for retrieval results.
//
// Re-ranking uses cross-encoder scoring to improve retrieval precision by
// evaluating query-document pairs together rather than independently.
//
// # Trade-offs
//
//   - Latency: adds one model round-trip per query, batched over the shortlist
//   - Quality: significantly better relevance when fused scores are close
//   - Cost: cross-encoder inference scales with the number of pairs scored
//
// Enable re-ranking where accuracy matters more than speed. Disable it for
// high-throughput or latency-sensitive applications.
package reranker

import (
	"context"
)

// Reranker defines the interface for scoring query-document pairs.
type Reranker interface {
	// Rerank scores each (query, document) pair with the cross-encoder
	// and returns one relevance score per document, aligned by index.
	// The caller reorders its candidates by these scores.
	Rerank(ctx context.Context, query string, documents []string) ([]float64, error)

	// Close releases held connections.
	Close() error
}
