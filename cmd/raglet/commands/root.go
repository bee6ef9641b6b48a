// Package commands implements the raglet CLI commands.
package commands

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/config"
	"github.com/kestrelworks/raglet/internal/logger"
	"github.com/kestrelworks/raglet/internal/metrics"
	"github.com/kestrelworks/raglet/internal/rag"
	"github.com/kestrelworks/raglet/internal/version"
)

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "raglet",
		Short: "Local-first RAG engine",
		Long: `raglet ingests documents into a local vector store and answers
questions over them with an OpenAI-compatible, Gemini or Ollama backend.

Examples:
  raglet ingest notes.md docs/guide.txt
  raglet query "how do I rotate the API key"
  raglet chat "summarize the deployment steps"
  raglet serve`,
		Version:       fmt.Sprintf("%s (%s, %s)", version.Version, version.Commit, version.Date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newIngestCmd(),
		newQueryCmd(),
		newChatCmd(),
		newDocsCmd(),
		newRevectorizeCmd(),
		newHistoryCmd(),
		newServeCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "raglet.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "override the log level (debug, info, warn, error)")

	return rootCmd
}

// app holds the shared wiring every command needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	engine *rag.Engine
}

// loadApp builds the engine from flags, .env and the config file.
func loadApp(cmd *cobra.Command) (*app, error) {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if override, _ := cmd.Flags().GetString("log-level"); override != "" {
		level = override
	}
	log, err := logger.New(cfg.Logging.Format, level)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.Register()

	return &app{
		cfg:    cfg,
		logger: log,
		engine: rag.New(cfg, nil, log),
	}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}
