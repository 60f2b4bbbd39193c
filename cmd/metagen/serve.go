package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/config"
	"github.com/cwbudde/metagen/internal/server"
	"github.com/cwbudde/metagen/internal/store"
)

var (
	port          int
	noCheckpoints bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP job server",
	Long: `Starts the job server. Jobs are submitted to /api/v1/jobs, progress is
streamed over SSE and Prometheus metrics are served on /metrics.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&port, "port", 8080, "Server port")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Checkpoint directory (default from config)")
	serveCmd.Flags().StringVar(&backend, "backend", "", "Checkpoint backend: fs or sqlite (default from config)")
	serveCmd.Flags().BoolVar(&noCheckpoints, "no-checkpoints", false, "Disable checkpoints and resume")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(func(c *config.Config) {
		applyFlags(cmd, c)
		if cmd.Flags().Changed("port") {
			c.Server.Port = port
		}
	})
	if err != nil {
		return err
	}

	var opts []server.Option
	if !noCheckpoints {
		checkpointStore, err := store.Open(commandContext(cmd), cfg.Checkpoint.Backend, cfg.Checkpoint.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open checkpoint store: %w", err)
		}
		defer store.CloseIfSupported(checkpointStore)
		opts = append(opts, server.WithCheckpointStore(checkpointStore, cfg.Checkpoint.DataDir))
	}

	srv := server.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), opts...)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		slog.Info("Received signal", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
