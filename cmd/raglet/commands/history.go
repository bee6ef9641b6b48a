package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var last int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past chat exchanges",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			entries := a.engine.History().Entries()
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no history")
				return nil
			}
			if last > 0 && len(entries) > last {
				entries = entries[len(entries)-last:]
			}

			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "[%s] status=%d\n> %s\n%s\n\n",
					e.TS.Format("2006-01-02 15:04:05"), e.Status, e.User, strings.TrimSpace(e.Raw))
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&last, "last", "n", 0, "show only the most recent N exchanges")
	return cmd
}
