package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/passagekit/passage/internal/metrics"
)

// ServiceConfig holds configuration for the embedding service.
type ServiceConfig struct {
	// MaxTextLen rejects longer inputs, measured in runes. Zero disables the check.
	MaxTextLen int

	// Normalize scales embeddings to unit length.
	Normalize bool

	// Cache holds recently computed embeddings. Nil disables caching.
	Cache *Cache

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Service wraps a provider with input validation, caching and normalization.
// No network work happens at construction; the first successful embed
// captures the model's actual dimension. Close releases held resources.
type Service struct {
	provider Embedder
	cfg      ServiceConfig
	logger   *slog.Logger

	mu        sync.Mutex
	ready     bool
	dimension int

	closeOnce sync.Once
	closeErr  error
}

// closer is implemented by providers that hold releasable resources.
type closer interface {
	Close() error
}

// NewService wraps provider with the given configuration.
func NewService(provider Embedder, cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		provider: provider,
		cfg:      cfg,
		logger:   logger,
	}
}

// Embed generates an embedding for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.validate(text); err != nil {
		return nil, err
	}

	var key string
	if s.cfg.Cache != nil {
		key = CacheKey(s.provider.ModelName(), text)
		if vec, ok := s.cfg.Cache.Get(key); ok {
			metrics.IncCacheEvent("hit")
			return vec, nil
		}
		metrics.IncCacheEvent("miss")
	}

	start := time.Now()
	vec, err := s.provider.Embed(ctx, text)
	metrics.ObserveEmbedding(time.Since(start))
	if err != nil {
		return nil, err
	}
	if s.cfg.Normalize {
		normalize(vec)
	}
	s.noteReady(vec)
	metrics.AddEmbedded(1)

	if s.cfg.Cache != nil {
		s.cfg.Cache.Put(key, vec)
	}
	return vec, nil
}

// EmbedBatch generates embeddings for multiple texts, serving cached
// entries and embedding only the misses. Results preserve input order.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrNoInput
	}
	for i, text := range texts {
		if err := s.validate(text); err != nil {
			return nil, fmt.Errorf("text at index %d: %w", i, err)
		}
	}

	results := make([][]float32, len(texts))
	var missing []int

	if s.cfg.Cache != nil {
		for i, text := range texts {
			key := CacheKey(s.provider.ModelName(), text)
			if vec, ok := s.cfg.Cache.Get(key); ok {
				metrics.IncCacheEvent("hit")
				results[i] = vec
				continue
			}
			metrics.IncCacheEvent("miss")
			missing = append(missing, i)
		}
		if len(missing) == 0 {
			return results, nil
		}
	} else {
		missing = make([]int, len(texts))
		for i := range texts {
			missing[i] = i
		}
	}

	missingTexts := make([]string, len(missing))
	for i, idx := range missing {
		missingTexts[i] = texts[idx]
	}

	start := time.Now()
	vectors, err := s.provider.EmbedBatch(ctx, missingTexts)
	metrics.ObserveEmbedding(time.Since(start))
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(missingTexts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(missingTexts), len(vectors))
	}
	metrics.AddEmbedded(len(vectors))

	for i, idx := range missing {
		vec := vectors[i]
		if s.cfg.Normalize {
			normalize(vec)
		}
		s.noteReady(vec)
		if s.cfg.Cache != nil {
			s.cfg.Cache.Put(CacheKey(s.provider.ModelName(), texts[idx]), vec)
		}
		results[idx] = vec
	}

	return results, nil
}

// Dimension returns the embedding dimension. Before the first successful
// embed this is the provider's declared dimension.
func (s *Service) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return s.dimension
	}
	return s.provider.Dimension()
}

// ModelName returns the name of the underlying embedding model.
func (s *Service) ModelName() string {
	return s.provider.ModelName()
}

// Close releases the cache and any resources held by the provider.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		if s.cfg.Cache != nil {
			s.cfg.Cache.Close()
		}
		if c, ok := s.provider.(closer); ok {
			s.closeErr = c.Close()
		}
	})
	return s.closeErr
}

func (s *Service) validate(text string) error {
	if s.cfg.MaxTextLen > 0 && utf8.RuneCountInString(text) > s.cfg.MaxTextLen {
		return fmt.Errorf("%d chars exceeds limit %d: %w",
			utf8.RuneCountInString(text), s.cfg.MaxTextLen, ErrTextTooLong)
	}
	return nil
}

// noteReady records the model's observed dimension after the first
// successful embed.
func (s *Service) noteReady(vec []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready || len(vec) == 0 {
		return
	}
	s.ready = true
	s.dimension = len(vec)
	if declared := s.provider.Dimension(); declared != s.dimension {
		s.logger.Warn("embedding dimension differs from declared",
			"model", s.provider.ModelName(),
			"declared", declared,
			"actual", s.dimension)
	}
	s.logger.Info("embedding model ready",
		"model", s.provider.ModelName(),
		"dimension", s.dimension)
}

// normalize scales v to unit length in place. Zero vectors are left unchanged.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
}

// Ensure Service implements Embedder interface.
var _ Embedder = (*Service)(nil)
