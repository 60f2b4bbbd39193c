package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/metagen/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "metagen",
	Short: "Metaheuristic optimization over typed search spaces",
	Long: `metagen defines search spaces of integer, real, categorical, group and
structure variables and searches them with random search, simulated annealing,
genetic algorithms and a multi-strain coronavirus optimization algorithm.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := parseLevel(resolveLogLevel(cmd))
		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
	},
}

// resolveLogLevel prefers an explicit --log-level over the config file's
// log_level. A config that fails to load is reported by the command itself.
func resolveLogLevel(cmd *cobra.Command) string {
	if cmd != nil && cmd.Flags().Changed("log-level") {
		return logLevel
	}
	if cfg, err := config.Load(configPath); err == nil && cfg.LogLevel != "" {
		return cfg.LogLevel
	}
	return logLevel
}

func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
}

// loadConfig reads --config and the environment, then applies fn to let a
// command layer its changed flags on top before validation.
func loadConfig(fn func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if fn != nil {
		fn(&cfg)
	}
	return cfg, cfg.Validate()
}

// commandContext returns the command context, or Background when the
// command was not started through Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if cmd != nil && cmd.Context() != nil {
		return cmd.Context()
	}
	return context.Background()
}
