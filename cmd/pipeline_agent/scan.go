package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/ingestion"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/logging"
	"github.com/kingofalbert/cms-automation-sub000/internal/observability"
	"github.com/kingofalbert/cms-automation-sub000/internal/source"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one source scan and ingest what changed",
	Long: `Walk the watched directory once, create work items for new documents,
and reset existing items whose content changed. Repeating a scan with no
source changes is a no-op.`,
	RunE: runScan,
}

var (
	scanConfigPath string
	scanWatchDir   string
	scanDBURL      string
	scanVerbose    bool
)

func init() {
	scanCmd.Flags().StringVar(&scanConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	scanCmd.Flags().StringVar(&scanWatchDir, "watch-dir", "", "Directory to scan for source documents")
	scanCmd.Flags().StringVar(&scanDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Print the pipeline queue after the scan")

	rootCmd.AddCommand(scanCmd)
}

func runScan(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadFileConfig(scanConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("watch-dir") {
		cfg.WatchDir = scanWatchDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = scanDBURL
	}

	if cfg.WatchDir == "" {
		return fmt.Errorf("--watch-dir flag or watch_dir config value is required")
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

	fsClient, err := source.NewFilesystemClient(cfg.WatchDir)
	if err != nil {
		return err
	}
	ledger := lifecycle.NewLedger(database, cfg.MaxRetries, logger)
	dedup := ingestion.NewDeduplicator(database, ledger, logger)
	poller := source.NewPoller(fsClient, dedup, 0, logger)

	accepted := poller.Scan(ctx)
	fmt.Fprintf(os.Stdout, "Scan complete: %d document(s) ingested\n", accepted)

	if scanVerbose {
		counts, err := database.CountWorkItemsByStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to count work items: %w", err)
		}
		observability.NewPrinter(os.Stdout).PrintQueue(counts)
	}
	return nil
}
