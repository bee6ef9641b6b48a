package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kestrelworks/raglet/internal/transport/api"
	"github.com/kestrelworks/raglet/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			a.logger.Info("starting raglet API server",
				zap.String("version", version.Version),
				zap.String("commit", version.Commit),
				zap.Int("http_port", a.cfg.HTTP.Port),
				zap.String("provider", string(a.cfg.ProviderKind())),
				zap.String("store", a.cfg.Storage.StorePath),
			)

			server := api.NewServer(a.engine, a.logger)
			srv := &http.Server{
				Addr:         fmt.Sprintf(":%d", a.cfg.HTTP.Port),
				Handler:      server.Router(),
				ReadTimeout:  time.Duration(a.cfg.HTTP.ReadTimeoutSec) * time.Second,
				WriteTimeout: time.Duration(a.cfg.HTTP.WriteTimeoutSec) * time.Second,
			}

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

			errCh := make(chan error, 1)
			go func() {
				a.logger.Info("listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("http server: %w", err)
			case <-quit:
				a.logger.Info("received shutdown signal")
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(a.cfg.HTTP.ShutdownSec)*time.Second)
			defer cancel()

			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("shutdown error", zap.Error(err))
				return err
			}
			a.logger.Info("server stopped gracefully")
			return nil
		},
	}
}
