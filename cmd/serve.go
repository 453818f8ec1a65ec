package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Yates-Labs/lectern/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the assistant HTTP API",
	Long: `Serve POST /api/assistant along with health endpoints.

When server.admin_token is set, POST /api/index/rebuild and
POST /api/index/reload are enabled and require "Authorization: Bearer <token>".

The server starts without an index and answers generally until one is built.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address override")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.index.Load(ctx); err != nil {
		// Still serve: /healthz reports the failure and reload can recover.
		logger.Error().Err(err).Msg("Failed to load index at startup")
	}

	srv, err := server.New(server.Config{
		Addr:         cfg.Server.Addr,
		AdminToken:   cfg.Server.AdminToken,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Version:      version,
	}, a.router, a.index, a.ingester, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Run(ctx)
}
