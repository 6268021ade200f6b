package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/claudio/internal/server"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server for remote control",
	Long: `Start the claudio HTTP server to record, play and browse recordings
from another device on the same network.

Microphone access must already be granted, or pass --yes.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		assumeYes, _ := cmd.Flags().GetBool("yes")

		srvCfg := cfg.Server
		if cmd.Flags().Changed("port") {
			srvCfg.Port, _ = cmd.Flags().GetString("port")
		}

		svc, err := openService(assumeYes)
		if err != nil {
			return err
		}
		defer svc.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		go svc.Watch(ctx)

		srv := server.New(svc, srvCfg)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("server failed: %w", err)
			}
			return nil
		case <-ctx.Done():
		}

		slog.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return <-errCh
	},
}

func init() {
	serveCmd.Flags().String("port", "8080", "port for the web server (overrides server.port)")
	serveCmd.Flags().BoolP("yes", "y", false, "grant microphone access without asking")
}
