package reranker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CrossEncoderConfig holds configuration for the cross-encoder client.
type CrossEncoderConfig struct {
	// URL is the full re-rank endpoint, e.g. http://localhost:8787/rerank.
	URL string

	// Model names the cross-encoder model, e.g. BAAI/bge-reranker-v2-m3.
	Model string

	// BatchSize bounds how many documents are scored per request.
	// Defaults to 32.
	BatchSize int

	// Timeout applies per HTTP request. Defaults to 10 seconds.
	Timeout time.Duration

	// Client overrides the HTTP client, for tests.
	Client *http.Client
}

// CrossEncoder scores query-document pairs against an HTTP re-rank
// service speaking the common rerank API: a JSON request with query,
// documents and model, answered by per-index relevance scores.
type CrossEncoder struct {
	url       string
	model     string
	batchSize int
	client    *http.Client
}

// NewCrossEncoder creates a cross-encoder client.
func NewCrossEncoder(cfg CrossEncoderConfig) (*CrossEncoder, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("re-rank URL is required")
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 32
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &CrossEncoder{
		url:       cfg.URL,
		model:     cfg.Model,
		batchSize: batchSize,
		client:    client,
	}, nil
}

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResult struct {
	Index          int     `json:"index"`
	RelevanceScore float64 `json:"relevance_score"`
}

type rerankResponse struct {
	Results []rerankResult `json:"results"`
}

// Rerank scores each document against the query, batching requests to
// bound per-call payload size. Scores come back aligned by document
// index. Any document left unscored by the service is an error; the
// caller fails the retrieval rather than silently keeping fused order.
func (r *CrossEncoder) Rerank(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}

	scores := make([]float64, len(documents))
	scored := make([]bool, len(documents))

	for start := 0; start < len(documents); start += r.batchSize {
		end := start + r.batchSize
		if end > len(documents) {
			end = len(documents)
		}
		batch := documents[start:end]

		results, err := r.rerankBatch(ctx, query, batch)
		if err != nil {
			return nil, err
		}

		for _, res := range results {
			if res.Index < 0 || res.Index >= len(batch) {
				return nil, fmt.Errorf("re-rank service returned index %d for a batch of %d documents", res.Index, len(batch))
			}
			scores[start+res.Index] = res.RelevanceScore
			scored[start+res.Index] = true
		}
	}

	for i, ok := range scored {
		if !ok {
			return nil, fmt.Errorf("re-rank service returned no score for document %d", i)
		}
	}
	return scores, nil
}

// rerankBatch sends one scoring request.
func (r *CrossEncoder) rerankBatch(ctx context.Context, query string, documents []string) ([]rerankResult, error) {
	reqBody, err := json.Marshal(rerankRequest{
		Model:     r.model,
		Query:     query,
		Documents: documents,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal re-rank request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create re-rank request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call re-rank service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("re-rank service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode re-rank response: %w", err)
	}
	return result.Results, nil
}

// Close releases idle connections held by the HTTP client.
func (r *CrossEncoder) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Ensure CrossEncoder implements Reranker
var _ Reranker = (*CrossEncoder)(nil)
