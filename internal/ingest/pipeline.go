// Package ingest turns source documents into searchable chunks: split,
// embed in batches, upsert into the vector store, and record each
// document in the registry when one is configured.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/passagekit/passage/internal/embedder"
	"github.com/passagekit/passage/internal/registry"
	"github.com/passagekit/passage/internal/tokens"
	"github.com/passagekit/passage/internal/vectorstore"
)

// Config holds configuration for the ingestion pipeline
type Config struct {
	// Collection receives the upserted chunks
	Collection string

	// Chunker controls how documents are split
	Chunker ChunkerConfig

	// EmbedBatchSize is how many chunks are embedded per provider call
	EmbedBatchSize int

	// Metadata is attached to every chunk, without overriding
	// chunk-level or document-level values
	Metadata map[string]string
}

// Pipeline orchestrates chunking, embedding, and upserting for one collection
type Pipeline struct {
	config   Config
	chunker  *Chunker
	embedder embedder.Embedder
	store    vectorstore.VectorStore
	registry registry.Registry
	counter  tokens.Counter
}

// Option configures optional pipeline collaborators
type Option func(*Pipeline)

// WithRegistry records ingested documents in the given registry
func WithRegistry(r registry.Registry) Option {
	return func(p *Pipeline) { p.registry = r }
}

// WithTokenCounter sets the counter used for per-chunk token counts
func WithTokenCounter(c tokens.Counter) Option {
	return func(p *Pipeline) { p.counter = c }
}

// New creates an ingestion pipeline
func New(config Config, emb embedder.Embedder, store vectorstore.VectorStore, opts ...Option) (*Pipeline, error) {
	if config.Collection == "" {
		return nil, errors.New("collection is required")
	}
	if emb == nil {
		return nil, errors.New("embedder is required")
	}
	if store == nil {
		return nil, errors.New("vector store is required")
	}
	if err := ValidateConfig(config.Chunker); err != nil {
		return nil, err
	}
	if config.EmbedBatchSize <= 0 {
		config.EmbedBatchSize = 16
	}

	p := &Pipeline{
		config:   config,
		chunker:  NewChunker(config.Chunker),
		embedder: emb,
		store:    store,
		counter:  tokens.Approx{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Document is one source document to ingest
type Document struct {
	Source   string
	Title    string
	Content  string
	Metadata map[string]string
}

// Result reports what one ingestion did
type Result struct {
	DocumentID  uuid.UUID
	Duplicate   bool
	ChunkCount  int
	TotalTokens int
	Took        time.Duration
}

// Ingest chunks, embeds, and upserts one document. Re-submitting the
// same source and content is detected through the registry and returns
// the existing document without touching the store; a previously failed
// ingestion is retried under its original document ID.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*Result, error) {
	start := time.Now()

	content := strings.TrimSpace(doc.Content)
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}
	source := doc.Source
	if source == "" {
		source = "direct-upload"
	}
	title := doc.Title
	if title == "" {
		title = "Untitled Document"
	}

	// The source is part of the hash so identical content from two
	// locations stays two documents.
	contentHash := hashContent(source + "\n" + content)

	docID := uuid.New()
	var record *registry.Document
	if p.registry != nil {
		existing, err := p.registry.GetByHash(ctx, p.config.Collection, contentHash)
		switch {
		case err == nil && existing.Status != registry.StatusFailed:
			return &Result{
				DocumentID: existing.ID,
				Duplicate:  true,
				ChunkCount: existing.ChunkCount,
				Took:       time.Since(start),
			}, nil
		case err == nil:
			// Retry a failed ingestion under the same document ID,
			// clearing whatever chunks the earlier attempt left behind
			docID = existing.ID
			if err := p.store.DeleteByDocument(ctx, p.config.Collection, docID.String()); err != nil {
				return nil, fmt.Errorf("failed to clear stale chunks: %w", err)
			}
			record = existing
		case !errors.Is(err, registry.ErrNotFound):
			return nil, fmt.Errorf("failed to check for duplicate: %w", err)
		}

		now := time.Now()
		if record == nil {
			record = &registry.Document{
				ID:          docID,
				Collection:  p.config.Collection,
				Source:      source,
				Title:       title,
				ContentHash: contentHash,
				Status:      registry.StatusProcessing,
				Metadata:    doc.Metadata,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := p.registry.Create(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to create document record: %w", err)
			}
		} else {
			record.Source = source
			record.Title = title
			record.Status = registry.StatusProcessing
			record.ErrorMessage = ""
			if err := p.registry.Update(ctx, record); err != nil {
				return nil, fmt.Errorf("failed to update document record: %w", err)
			}
		}
	}

	chunks := p.chunker.Chunk(content)
	totalTokens, err := p.indexChunks(ctx, docID, source, title, doc.Metadata, chunks)
	if err != nil {
		p.markFailed(record, err)
		return nil, err
	}

	if record != nil {
		record.ChunkCount = len(chunks)
		record.Status = registry.StatusReady
		record.ErrorMessage = ""
		if err := p.registry.Update(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to record ingestion: %w", err)
		}
	}

	return &Result{
		DocumentID:  docID,
		ChunkCount:  len(chunks),
		TotalTokens: totalTokens,
		Took:        time.Since(start),
	}, nil
}

// indexChunks embeds and upserts chunks in batches. The collection is
// created on the first batch once the embedding dimension is known.
func (p *Pipeline) indexChunks(ctx context.Context, docID uuid.UUID, source, title string, metadata map[string]string, chunks []Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, errors.New("no chunks produced")
	}

	ensured := false
	totalTokens := 0

	for i := 0; i < len(chunks); i += p.config.EmbedBatchSize {
		end := i + p.config.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]

		texts := make([]string, len(batch))
		for j, chunk := range batch {
			texts[j] = chunk.Content
		}

		vectors, err := p.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed chunks %d-%d: %w", i, end-1, err)
		}
		if len(vectors) != len(batch) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		if !ensured {
			if err := p.store.EnsureCollection(ctx, p.config.Collection, len(vectors[0])); err != nil {
				return 0, fmt.Errorf("failed to ensure collection: %w", err)
			}
			ensured = true
		}

		points := make([]vectorstore.Chunk, len(batch))
		for j, chunk := range batch {
			points[j] = vectorstore.Chunk{
				ID:         uuid.New().String(),
				DocumentID: docID.String(),
				Content:    chunk.Content,
				Vector:     vectors[j],
				Metadata:   p.chunkMetadata(chunk, source, title, metadata),
			}
			totalTokens += p.counter.Count(chunk.Content)
		}

		if err := p.store.Upsert(ctx, p.config.Collection, points); err != nil {
			return 0, fmt.Errorf("failed to upsert chunks %d-%d: %w", i, end-1, err)
		}
	}

	return totalTokens, nil
}

// chunkMetadata merges metadata sources. Priority: chunk metadata,
// then document metadata, then pipeline defaults.
func (p *Pipeline) chunkMetadata(chunk Chunk, source, title string, docMetadata map[string]string) map[string]string {
	meta := map[string]string{
		"source":      source,
		"title":       title,
		"chunk_index": strconv.Itoa(chunk.Index),
	}
	for k, v := range chunk.Metadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	for k, v := range docMetadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	for k, v := range p.config.Metadata {
		if _, exists := meta[k]; !exists {
			meta[k] = v
		}
	}
	return meta
}

// markFailed records a failed ingestion so the document can be retried.
// Best effort: the ingestion error is what the caller needs to see.
func (p *Pipeline) markFailed(record *registry.Document, cause error) {
	if p.registry == nil || record == nil {
		return
	}
	record.Status = registry.StatusFailed
	record.ErrorMessage = cause.Error()
	_ = p.registry.Update(context.Background(), record)
}

// Delete removes a document's chunks from the store and its registry record
func (p *Pipeline) Delete(ctx context.Context, id uuid.UUID) error {
	collection := p.config.Collection
	if p.registry != nil {
		doc, err := p.registry.GetByID(ctx, id)
		if err != nil {
			return err
		}
		collection = doc.Collection
	}

	if err := p.store.DeleteByDocument(ctx, collection, id.String()); err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}

	if p.registry != nil {
		if err := p.registry.Delete(ctx, id); err != nil && !errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("failed to delete document record: %w", err)
		}
	}
	return nil
}

// hashContent generates a SHA-256 hash of the content
func hashContent(content string) string {
	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
