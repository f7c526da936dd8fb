package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingofalbert/cms-automation-sub000/internal/config"
	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/ingestion"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/logging"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/server"
	"github.com/kingofalbert/cms-automation-sub000/internal/source"
)

var (
	servePort       int
	serveConfigPath string
	serveWatchDir   string
	serveDBURL      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the review surface: work item queries,
issue and decision endpoints, publish audit trails, and the commands that
confirm parsing, record decisions, and request publishing.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "Port to listen on")
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch-dir", "", "Watched source directory; enables the POST /scan endpoint")
	serveCmd.Flags().StringVar(&serveDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadFileConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch-dir") {
		cfg.WatchDir = serveWatchDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = serveDBURL
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	logger := logging.New(cfg.LogLevel)

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()
	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	ledger := lifecycle.NewLedger(database, cfg.MaxRetries, logger)
	decisions := proofreading.NewDecisionLedger(database, logger)

	// POST /scan only works when a source directory is configured; a
	// deployment that runs its poller elsewhere serves the rest of the
	// API without it.
	var scanner server.Scanner
	if cfg.WatchDir != "" {
		fsClient, err := source.NewFilesystemClient(cfg.WatchDir)
		if err != nil {
			return err
		}
		dedup := ingestion.NewDeduplicator(database, ledger, logger)
		scanner = source.NewPoller(fsClient, dedup, cfg.PollIntervalOrDefault(), logger)
	}

	srv, err := server.New(server.Config{
		Port:      servePort,
		Store:     database,
		Ledger:    ledger,
		Decisions: decisions,
		Scanner:   scanner,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}

// loadFileConfig loads and validates the JSON config file, or returns an
// empty config when no path was given.
func loadFileConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Config{}, nil
	}
	loaded, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	if err := loaded.Validate(); err != nil {
		return config.Config{}, err
	}
	return *loaded, nil
}
