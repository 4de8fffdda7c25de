package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"patreon-tier-notifier/config"
	"patreon-tier-notifier/metrics"
	"patreon-tier-notifier/notify"
	"patreon-tier-notifier/poll"
	"patreon-tier-notifier/scraper"
)

// defaultConfigPaths are tried in order when no path argument is given.
var defaultConfigPaths = []string{
	"config/config.json",
	"../config/config.json",
}

func execute() int {
	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		return 1
	}
	return 0
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: config.LogLevel(),
	}))
}

// loadConfig reads the explicit path, or the first default path that loads.
func loadConfig(args []string) (*config.Config, string, error) {
	if len(args) > 0 {
		cfg, err := config.Load(args[0])
		return cfg, args[0], err
	}
	return config.LoadFirst(defaultConfigPaths...)
}

func newRootCmd() *cobra.Command {
	var once bool

	rootCmd := &cobra.Command{
		Use:           "alerter [config.json]",
		Short:         "Watch Patreon membership pages for tiers that become available",
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(cmd.OutOrStdout())

			cfg, path, err := loadConfig(args)
			if err != nil {
				logger.Error("Failed to load configuration", "error", err)
				return fmt.Errorf("load configuration: %w", err)
			}
			logger.Info("Configuration loaded",
				"path", path,
				"creators", len(cfg.Creators),
				"interval", cfg.CheckInterval().String())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger, once)
		},
	}

	rootCmd.Flags().BoolVar(&once, "once", false, "Run a single check cycle and exit")
	rootCmd.AddCommand(newValidateCmd())
	return rootCmd
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, once bool) error {
	sender := notify.New(ctx, cfg.SMSSettings, metrics.Nop{}, logger)
	defer func() {
		if err := sender.Close(); err != nil {
			logger.Warn("Failed to close notifier", "error", err)
		}
	}()

	scr := scraper.New(&http.Client{Timeout: 30 * time.Second}, logger)
	monitor := poll.New(scr, nil, metrics.Nop{}, logger, poll.Sequential)

	if once {
		alerts, err := monitor.CheckAll(ctx, cfg, sender)
		if err != nil {
			return err
		}
		logger.Info("Single check finished", "alerts", len(alerts))
		return nil
	}

	err := monitor.Run(ctx, cfg, sender)
	if errors.Is(err, context.Canceled) {
		logger.Info("Shutting down")
		return nil
	}
	return err
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [config.json]",
		Short: "Check a configuration document and print a summary",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := loadConfig(args)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: ok\n", path)
			for _, c := range cfg.Creators {
				fmt.Fprintf(out, "  %s (%s): %d tiers watched\n", c.Name, c.URL, len(c.TiersToWatch))
			}
			provider := "console"
			if cfg.SMSSettings != nil && cfg.SMSSettings.Provider != "" {
				provider = cfg.SMSSettings.Provider
			}
			fmt.Fprintf(out, "  notifier: %s, interval: %s\n", provider, cfg.CheckInterval())
			return nil
		},
	}
}
