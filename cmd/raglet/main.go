// Command raglet is the CLI for the raglet retrieval-augmented generation
// engine: ingest documents, query the local vector store, chat with a model
// over the retrieved context, or serve the HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/kestrelworks/raglet/cmd/raglet/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
