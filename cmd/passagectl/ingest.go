package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/passagekit/passage/internal/config"
	"github.com/passagekit/passage/internal/ingest"
	"github.com/passagekit/passage/internal/tokens"
)

func newIngestCmd() *cobra.Command {
	var (
		collection string
		title      string
		method     string
		targetSize int
		maxSize    int
		overlap    int
		meta       []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file|dir]...",
		Short: "Chunk, embed, and index documents",
		Long: "Ingest reads text or markdown files, splits them into chunks,\n" +
			"embeds each chunk, and upserts the result into the vector store.\n" +
			"Directories are walked for .txt, .md, and .markdown files. Pass\n" +
			"\"-\" to read a single document from stdin.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			ctx := cmd.Context()

			if collection == "" {
				collection = cfg.DefaultCollection
			}
			if method == "" {
				method = cfg.DefaultChunkMethod
			}
			if targetSize <= 0 {
				targetSize = cfg.DefaultChunkTargetSize
			}
			if maxSize <= 0 {
				maxSize = cfg.DefaultChunkMaxSize
			}
			if overlap < 0 {
				overlap = cfg.DefaultChunkOverlap
			}

			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}

			docs, err := collectDocuments(args, title)
			if err != nil {
				return err
			}

			emb, err := newEmbedder(cfg)
			if err != nil {
				return fmt.Errorf("failed to create embedder: %w", err)
			}
			defer emb.Close()

			store, err := newStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to Qdrant: %w", err)
			}
			defer store.Close()

			opts := []ingest.Option{
				ingest.WithTokenCounter(tokens.NewTiktoken(cfg.TokenEncoding)),
			}
			reg, err := newRegistry(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to registry: %w", err)
			}
			if reg != nil {
				defer reg.Close()
				opts = append(opts, ingest.WithRegistry(reg))
			}

			pipe, err := ingest.New(ingest.Config{
				Collection: collection,
				Chunker: ingest.ChunkerConfig{
					Method:     method,
					TargetSize: targetSize,
					MaxSize:    maxSize,
					Overlap:    overlap,
				},
				Metadata: metadata,
			}, emb, store, opts...)
			if err != nil {
				return err
			}

			var failed int
			for _, doc := range docs {
				res, err := pipe.Ingest(ctx, doc)
				if err != nil {
					fmt.Fprintf(os.Stderr, "failed to ingest %s: %v\n", doc.Source, err)
					failed++
					continue
				}
				if res.Duplicate {
					fmt.Printf("unchanged %s (document %s)\n", doc.Source, res.DocumentID)
					continue
				}
				fmt.Printf("ingested %s (document %s, %d chunks, %d tokens, %s)\n",
					doc.Source, res.DocumentID, res.ChunkCount, res.TotalTokens,
					res.Took.Round(time.Millisecond))
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d documents failed", failed, len(docs))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "target collection (default from DEFAULT_COLLECTION)")
	cmd.Flags().StringVar(&title, "title", "", "document title (default: file name)")
	cmd.Flags().StringVar(&method, "chunk-method", "", "chunking method, fixed or sentence")
	cmd.Flags().IntVar(&targetSize, "target-size", 0, "target chunk size in words")
	cmd.Flags().IntVar(&maxSize, "max-size", 0, "maximum chunk size in words")
	cmd.Flags().IntVar(&overlap, "overlap", -1, "words carried over between consecutive chunks")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata attached to every chunk, as key=value")

	return cmd
}

// collectDocuments resolves paths into documents. An explicit title
// applies to named files and stdin, not to files found by walking a
// directory.
func collectDocuments(args []string, title string) ([]ingest.Document, error) {
	var docs []ingest.Document
	for _, arg := range args {
		if arg == "-" {
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				return nil, fmt.Errorf("failed to read stdin: %w", err)
			}
			docs = append(docs, ingest.Document{Source: "stdin", Title: title, Content: string(content)})
			continue
		}

		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			doc, err := readDocument(arg, title)
			if err != nil {
				return nil, err
			}
			docs = append(docs, doc)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !ingestibleFile(path) {
				return nil
			}
			doc, err := readDocument(path, "")
			if err != nil {
				return err
			}
			docs = append(docs, doc)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if len(docs) == 0 {
		return nil, errors.New("no ingestible files found")
	}
	return docs, nil
}

func readDocument(path, title string) (ingest.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return ingest.Document{}, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return ingest.Document{Source: path, Title: title, Content: string(content)}, nil
}

func ingestibleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md", ".markdown":
		return true
	}
	return false
}

func parseMetadata(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	metadata := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid metadata %q, expected key=value", pair)
		}
		metadata[key] = value
	}
	return metadata, nil
}
