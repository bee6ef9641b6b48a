package commands

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func newDocsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage ingested documents",
	}
	cmd.AddCommand(newDocsListCmd(), newDocsRemoveCmd())
	return cmd
}

func newDocsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			docs := a.engine.Store().ListDocs()
			if len(docs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "store is empty")
				return nil
			}

			paths := make([]string, 0, len(docs))
			for p := range docs {
				paths = append(paths, p)
			}
			sort.Strings(paths)

			out := cmd.OutOrStdout()
			for _, p := range paths {
				d := docs[p]
				when := ""
				if d.MTime > 0 {
					when = time.Unix(d.MTime, 0).Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%s  %d chunks  %d bytes  %s\n", p, len(d.ChunkIDs), d.Size, when)
			}
			return nil
		},
	}
}

func newDocsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <path>",
		Short: "Remove a document and its chunks from the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			removed, err := a.engine.Store().RemoveDoc(args[0])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("document %s is not in the store", args[0])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		},
	}
}
