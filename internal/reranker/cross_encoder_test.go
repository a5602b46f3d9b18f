package reranker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestCrossEncoder_Rerank(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if req.Query != "vector database retries" {
			t.Errorf("unexpected query: %q", req.Query)
		}
		if req.Model != "BAAI/bge-reranker-v2-m3" {
			t.Errorf("unexpected model: %q", req.Model)
		}
		if len(req.Documents) != 3 {
			t.Errorf("expected 3 documents, got %d", len(req.Documents))
		}

		// Scores returned out of order must still land by index
		json.NewEncoder(w).Encode(rerankResponse{Results: []rerankResult{
			{Index: 2, RelevanceScore: 0.1},
			{Index: 0, RelevanceScore: 0.9},
			{Index: 1, RelevanceScore: 0.5},
		}})
	}))
	defer server.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{URL: server.URL, Model: "BAAI/bge-reranker-v2-m3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ce.Close()

	scores, err := ce.Rerank(context.Background(), "vector database retries",
		[]string{"first", "second", "third"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []float64{0.9, 0.5, 0.1}
	for i, s := range scores {
		if s != want[i] {
			t.Errorf("score %d: expected %v, got %v", i, want[i], s)
		}
	}
}

func TestCrossEncoder_Batching(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		var req rerankRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		if len(req.Documents) > 2 {
			t.Errorf("expected batches of at most 2, got %d", len(req.Documents))
		}

		// Score encodes the document number so placement is verifiable
		results := make([]rerankResult, len(req.Documents))
		for i, doc := range req.Documents {
			var n int
			fmt.Sscanf(strings.TrimPrefix(doc, "doc-"), "%d", &n)
			results[i] = rerankResult{Index: i, RelevanceScore: float64(n) / 10}
		}
		json.NewEncoder(w).Encode(rerankResponse{Results: results})
	}))
	defer server.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{URL: server.URL, BatchSize: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ce.Close()

	docs := []string{"doc-1", "doc-2", "doc-3", "doc-4", "doc-5"}
	scores, err := ce.Rerank(context.Background(), "query", docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := requests.Load(); got != 3 {
		t.Errorf("expected 3 batched requests, got %d", got)
	}
	for i, s := range scores {
		want := float64(i+1) / 10
		if s != want {
			t.Errorf("score %d: expected %v, got %v", i, want, s)
		}
	}
}

func TestCrossEncoder_EmptyDocuments(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer server.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ce.Close()

	scores, err := ce.Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scores != nil {
		t.Errorf("expected nil scores, got %v", scores)
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("expected no requests, got %d", got)
	}
}

func TestCrossEncoder_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ce.Close()

	if _, err := ce.Rerank(context.Background(), "query", []string{"doc"}); err == nil {
		t.Fatal("expected error from failing service")
	}
}

func TestCrossEncoder_MissingScoreIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(rerankResponse{Results: []rerankResult{
			{Index: 0, RelevanceScore: 0.8},
		}})
	}))
	defer server.Close()

	ce, err := NewCrossEncoder(CrossEncoderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer ce.Close()

	if _, err := ce.Rerank(context.Background(), "query", []string{"first", "second"}); err == nil {
		t.Fatal("expected error when a document is left unscored")
	}
}

func TestNewCrossEncoder_RequiresURL(t *testing.T) {
	if _, err := NewCrossEncoder(CrossEncoderConfig{}); err == nil {
		t.Fatal("expected error for missing URL")
	}
}
