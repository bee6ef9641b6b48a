package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRevectorizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revectorize",
		Short: "Re-embed every stored chunk with the configured provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			sum, err := a.engine.Revectorize(cmd.Context())
			if err != nil {
				return err
			}
			line := fmt.Sprintf("%d documents, %d chunks re-embedded", sum.Documents, sum.Chunks)
			if sum.FallbackDocs > 0 {
				line += fmt.Sprintf(" (%d documents fell back to local vectors)", sum.FallbackDocs)
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
	}
}
