package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/garyellow/unibot-go/internal/config"
	"github.com/garyellow/unibot-go/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "catalogue",
	Short:         "Maintain the university catalogue database",
	Long:          `Imports university records from YAML, reports catalogue statistics and publishes the database snapshot to R2.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("db", "", "SQLite catalogue path (default: $DATA_DIR/catalogue.db)")
}

// loadEnv reads CLI configuration and resolves the database path flag.
func loadEnv(cmd *cobra.Command) (*config.Config, string, *logger.Logger, error) {
	cfg, err := config.LoadForMode(config.CLIMode)
	if err != nil {
		return nil, "", nil, fmt.Errorf("load config: %w", err)
	}

	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.SQLitePath()
	}

	log := logger.NewWithWriter(cfg.LogLevel, os.Stderr).WithField("service", "unibot-catalogue")
	return cfg, dbPath, log, nil
}
