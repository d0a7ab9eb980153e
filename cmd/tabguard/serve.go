package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/tabguard"
	"github.com/loykin/tabguard/internal/config"
	"github.com/loykin/tabguard/internal/logger"
)

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the tabguard daemon",
		Long: `Run the daemon until interrupted. The configuration file is created with
defaults when it does not exist.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, globalFlags.ConfigPath)
		},
	}
}

func runServe(ctx context.Context, configPath string) error {
	cfg, path, err := tabguard.LoadConfig(configPath)
	var replaced *config.ReplacedError
	if err != nil && !errors.As(err, &replaced) {
		return err
	}

	log, closer, lerr := logger.New(cfg.LoggerConfig())
	if lerr != nil {
		return lerr
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if replaced != nil {
		slog.Warn("Config file was invalid, using defaults", "path", replaced.Path, "backup", replaced.Backup, "error", replaced.Err)
	}
	slog.Info("Starting tabguard", "config", path, "browser", cfg.BrowserName, "interval", cfg.Interval(), "strategies", cfg.KillTabStrategies)

	d, err := tabguard.New(cfg)
	if err != nil {
		return err
	}
	if err := d.Run(ctx); err != nil {
		return err
	}
	slog.Info("tabguard stopped")
	return nil
}
