package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sentinelworks/sentinel/internal/config"
	"github.com/sentinelworks/sentinel/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Sentinel HTTP server",
	Long:  `Starts the assistant as a long-running HTTP service exposing the chat, document, memory, and thread endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			return fmt.Errorf("config not loaded")
		}

		app, err := server.NewApp(cfg)
		if err != nil {
			return fmt.Errorf("failed to build application: %w", err)
		}
		defer app.Close()

		httpServer, err := server.NewHTTPServer(app)
		if err != nil {
			return fmt.Errorf("failed to build http server: %w", err)
		}
		httpServer.Start()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		slog.Info("Shutting down", "signal", sig.String())

		shutdownTimeout, err := config.DurationOrDefault(cfg.Server.ShutdownTimeout, config.DefaultServerShutdownTimeout)
		if err != nil {
			shutdownTimeout, _ = config.DurationOrDefault("", config.DefaultServerShutdownTimeout)
		}

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Stop(ctx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
