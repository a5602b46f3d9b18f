package embedder

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"
)

// fakeProvider returns a fixed vector for every text and records calls.
type fakeProvider struct {
	mu         sync.Mutex
	embedCalls int
	lastBatch  []string
	vector     []float32
	dim        int
	err        error
	closed     bool
}

func (f *fakeProvider) Embed(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]float32, len(f.vector))
	copy(out, f.vector)
	return out, nil
}

func (f *fakeProvider) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedCalls++
	f.lastBatch = append([]string(nil), texts...)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, len(f.vector))
		copy(vec, f.vector)
		out[i] = vec
	}
	return out, nil
}

func (f *fakeProvider) Dimension() int    { return f.dim }
func (f *fakeProvider) ModelName() string { return "fake-model" }

func (f *fakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeProvider) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.embedCalls
}

func TestService_RejectsTooLongText(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}, dim: 1}
	svc := NewService(provider, ServiceConfig{MaxTextLen: 5})

	_, err := svc.Embed(context.Background(), "abcdefg")
	if !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("expected ErrTextTooLong, got %v", err)
	}
	if provider.calls() != 0 {
		t.Errorf("expected no provider call, got %d", provider.calls())
	}

	_, err = svc.EmbedBatch(context.Background(), []string{"ok", "abcdefg"})
	if !errors.Is(err, ErrTextTooLong) {
		t.Fatalf("expected ErrTextTooLong from batch, got %v", err)
	}
}

func TestService_NormalizesEmbeddings(t *testing.T) {
	provider := &fakeProvider{vector: []float32{3, 4}, dim: 2}
	svc := NewService(provider, ServiceConfig{Normalize: true})

	vec, err := svc.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("expected unit vector [0.6 0.8], got %v", vec)
	}

	var norm float64
	for _, x := range vec {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestService_CacheAvoidsRecompute(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 2}, dim: 2}
	cache := NewCache(8, time.Minute)
	defer cache.Close()
	svc := NewService(provider, ServiceConfig{Cache: cache})

	if _, err := svc.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("first Embed failed: %v", err)
	}
	if _, err := svc.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}

	if provider.calls() != 1 {
		t.Errorf("expected 1 provider call, got %d", provider.calls())
	}
}

func TestService_EmbedBatchServesCachedEntries(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}, dim: 1}
	cache := NewCache(8, time.Minute)
	defer cache.Close()
	svc := NewService(provider, ServiceConfig{Cache: cache})

	if _, err := svc.Embed(context.Background(), "a"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	results, err := svc.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(results) != 2 || results[0] == nil || results[1] == nil {
		t.Fatalf("expected 2 results, got %v", results)
	}

	if len(provider.lastBatch) != 1 || provider.lastBatch[0] != "b" {
		t.Errorf("expected provider to embed only the miss, got %v", provider.lastBatch)
	}
}

func TestService_DimensionCapturedOnFirstUse(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1, 2}, dim: 8}
	svc := NewService(provider, ServiceConfig{})

	if got := svc.Dimension(); got != 8 {
		t.Errorf("expected declared dimension 8 before first use, got %d", got)
	}

	if _, err := svc.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if got := svc.Dimension(); got != 2 {
		t.Errorf("expected observed dimension 2 after first use, got %d", got)
	}
}

func TestService_EmptyBatch(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}, dim: 1}
	svc := NewService(provider, ServiceConfig{})

	_, err := svc.EmbedBatch(context.Background(), nil)
	if !errors.Is(err, ErrNoInput) {
		t.Fatalf("expected ErrNoInput, got %v", err)
	}
	if provider.calls() != 0 {
		t.Errorf("expected no provider call, got %d", provider.calls())
	}
}

func TestService_PropagatesProviderError(t *testing.T) {
	wantErr := errors.New("model is loading")
	provider := &fakeProvider{err: wantErr, dim: 1}
	svc := NewService(provider, ServiceConfig{})

	if _, err := svc.Embed(context.Background(), "hello"); !errors.Is(err, wantErr) {
		t.Errorf("expected provider error, got %v", err)
	}
}

func TestService_CloseReleasesProvider(t *testing.T) {
	provider := &fakeProvider{vector: []float32{1}, dim: 1}
	cache := NewCache(8, time.Minute)
	svc := NewService(provider, ServiceConfig{Cache: cache})

	if err := svc.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := svc.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	provider.mu.Lock()
	closed := provider.closed
	provider.mu.Unlock()
	if !closed {
		t.Error("expected provider to be closed")
	}
}
