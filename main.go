package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"banward/app"
	"banward/config"
	"banward/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "banward",
	Short: "Punishment store service for game servers",
	Long: `banward runs the punishment store standalone: it opens the configured
SQL backend, sweeps expired punishments in the background and exposes the
moderation surfaces to an attached host.`,
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default config.yml)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logging.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	defer func() { _ = log.Sync() }()

	// Standalone mode has no attached game server; moderation actions
	// come from an embedding host wiring its own handlers.Host.
	a, err := app.New(cfg, nil, log)
	if err != nil {
		return err
	}
	if err := a.Start(); err != nil {
		return err
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Infow("shutting down", "signal", s)

	a.Stop()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
