package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/exp/slog"

	"fieldsync/internal/app"
	"fieldsync/internal/config"
	"fieldsync/internal/logger"
)

var (
	cfg        *config.Config
	log        *slog.Logger
	engine     *app.App
	debug      bool
	jsonOutput bool
	remoteURL  string
)

var rootCmd = &cobra.Command{
	Use:   "fieldsync",
	Short: "fieldsync - offline synchronization engine for field operations",
	Long: `fieldsync keeps field-operations data usable with no network: writes are
recorded in a durable local queue and replayed against the remote service
once connectivity returns, without losing or duplicating operations.`,
	PersistentPreRunE: setup,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute runs the CLI.
func Execute() {
	defer teardown()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if remoteURL != "" {
		cfg.RemoteBaseURL = remoteURL
	}
	level := cfg.LogLevel
	if debug {
		level = "debug"
	}
	log = logger.New(os.Stderr, level, jsonOutput)

	engine = app.New(cfg, log)
	if err := engine.Initialize(cmd.Context()); err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	return nil
}

func teardown() {
	if engine != nil {
		if err := engine.Close(); err != nil && log != nil {
			log.Warn("failed to close engine", "error", err)
		}
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json-logs", false, "log in JSON format")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "remote service base URL")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(resetCmd)
}
