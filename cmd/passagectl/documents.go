package main

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/passagekit/passage/internal/config"
	"github.com/passagekit/passage/internal/registry"
)

func newListCmd() *cobra.Command {
	var (
		collection string
		status     string
		limit      int
		offset     int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL must be set to use the document registry")
			}
			if collection == "" {
				collection = cfg.DefaultCollection
			}

			reg, err := registry.NewPostgres(cmd.Context(), cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("failed to connect to registry: %w", err)
			}
			defer reg.Close()

			docs, total, err := reg.List(cmd.Context(), collection, status, limit, offset)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tCHUNKS\tTITLE\tSOURCE\tUPDATED")
			for _, doc := range docs {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\n",
					doc.ID, doc.Status, doc.ChunkCount, doc.Title, doc.Source,
					doc.UpdatedAt.Format(time.RFC3339))
			}
			w.Flush()
			fmt.Printf("%d of %d documents\n", len(docs), total)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection to list (default from DEFAULT_COLLECTION)")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, processing, ready, failed)")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum documents to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "documents to skip")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document's chunks and registry record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid document ID %q: %w", args[0], err)
			}

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if collection == "" {
				collection = cfg.DefaultCollection
			}
			ctx := cmd.Context()

			store, err := newStore(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to Qdrant: %w", err)
			}
			defer store.Close()

			reg, err := newRegistry(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to connect to registry: %w", err)
			}
			if reg != nil {
				defer reg.Close()
				doc, err := reg.GetByID(ctx, id)
				if err != nil {
					return err
				}
				collection = doc.Collection
			}

			if err := store.DeleteByDocument(ctx, collection, id.String()); err != nil {
				return fmt.Errorf("failed to delete chunks: %w", err)
			}
			if reg != nil {
				if err := reg.Delete(ctx, id); err != nil && !errors.Is(err, registry.ErrNotFound) {
					return fmt.Errorf("failed to delete document record: %w", err)
				}
			}

			fmt.Printf("deleted document %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection holding the chunks, used when no registry is configured")

	return cmd
}
