package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/raglet/internal/rag"
)

func newIngestCmd() *cobra.Command {
	var providerEmbeddings bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Split documents into chunks and store them in the vector index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			for _, path := range args {
				var (
					summary rag.IngestSummary
					err     error
				)
				if providerEmbeddings {
					summary, err = a.engine.IngestFileWithProviderEmbeddings(cmd.Context(), path)
				} else {
					summary, err = a.engine.IngestFile(path)
				}
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				line := fmt.Sprintf("%s: %d chunks, %d stored", summary.Path, summary.Chunks, summary.Stored)
				if summary.LocalFallbacks > 0 {
					line += fmt.Sprintf(" (%d local fallbacks)", summary.LocalFallbacks)
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&providerEmbeddings, "provider-embeddings", false,
		"embed chunks with the configured provider instead of the local vectorizer")
	return cmd
}
