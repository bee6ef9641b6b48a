package commands

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/kestrelworks/raglet/internal/domain"
)

func newChatCmd() *cobra.Command {
	var (
		topK               int
		noStream           bool
		providerEmbeddings bool
	)

	cmd := &cobra.Command{
		Use:   "chat <prompt>",
		Short: "Ask a question over the ingested documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()

			if noStream {
				res, err := a.engine.Chat(cmd.Context(), args[0], topK, providerEmbeddings)
				if err != nil {
					return err
				}
				if res.Status != http.StatusOK {
					return statusError(res.Status)
				}
				fmt.Fprintln(out, res.Reply)
				return nil
			}

			streamed := 0
			res, err := a.engine.ChatStream(cmd.Context(), args[0], topK, providerEmbeddings, func(delta string) {
				fmt.Fprint(out, delta)
				streamed += len(delta)
			})
			if err != nil {
				return err
			}
			if res.Status != http.StatusOK {
				fmt.Fprintln(out)
				return statusError(res.Status)
			}
			// The reply was already streamed; print what finishing added
			// (the citations block).
			if len(res.Reply) > streamed {
				fmt.Fprint(out, res.Reply[streamed:])
			}
			fmt.Fprintln(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", 5, "number of context chunks to retrieve")
	cmd.Flags().BoolVar(&noStream, "no-stream", false, "wait for the complete reply instead of streaming")
	cmd.Flags().BoolVar(&providerEmbeddings, "provider-embeddings", false,
		"embed the question with the configured provider; required when the store was ingested with provider embeddings")
	return cmd
}

func statusError(status int) error {
	switch status {
	case domain.StatusClientTimeout:
		return fmt.Errorf("request timed out")
	case domain.StatusStreamStall:
		return fmt.Errorf("stream stalled")
	default:
		return fmt.Errorf("provider returned status %d", status)
	}
}
