package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newQueryCmd() *cobra.Command {
	var (
		topK               int
		providerEmbeddings bool
	)

	cmd := &cobra.Command{
		Use:   "query <prompt>",
		Short: "Retrieve the chunks most similar to a prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			results := a.engine.Query(cmd.Context(), args[0], topK, providerEmbeddings)
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}

			out := cmd.OutOrStdout()
			for i, r := range results {
				fmt.Fprintf(out, "%d. %s [%d-%d] score=%.4f\n",
					i+1, filepath.Base(r.Chunk.Path), r.Chunk.Start, r.Chunk.End, r.Score)
				fmt.Fprintln(out, indent(r.Chunk.Text))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of chunks to return")
	cmd.Flags().BoolVar(&providerEmbeddings, "provider-embeddings", false,
		"embed the prompt with the configured provider")
	return cmd
}

func indent(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "   " + l
	}
	return strings.Join(lines, "\n")
}
