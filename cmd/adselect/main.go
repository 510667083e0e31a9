package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	corecfg "github.com/aevon-lab/adselect/internal/core/config"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "adselect",
		Short: "Real-time banner selection engine",
		Long:  "adselect ranks eligible banners for a request context by the revenue their keywords earned over a rolling horizon.",
		// Running the bare binary serves, like the previous single-command build.
		RunE: runServe,
	}
	root.SilenceUsage = true
	root.SilenceErrors = true
	root.PersistentFlags().StringVar(&configPath, "config", "adselect.yaml", "Path to configuration file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server and the update pipeline",
			RunE:  runServe,
		},
		newMigrateCmd(),
		newRebuildCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration and installs the configured slog handler.
func loadConfig() (*corecfg.Config, error) {
	cfg, err := corecfg.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log)
	return cfg, nil
}

func setupLogger(cfg corecfg.LogConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
