package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kingofalbert/cms-automation-sub000/internal/browser"
	"github.com/kingofalbert/cms-automation-sub000/internal/config"
	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/ingestion"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/logging"
	"github.com/kingofalbert/cms-automation-sub000/internal/optimization"
	"github.com/kingofalbert/cms-automation-sub000/internal/parsing"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/publishing"
	"github.com/kingofalbert/cms-automation-sub000/internal/source"
	"github.com/kingofalbert/cms-automation-sub000/internal/worker"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background pipeline workers",
	Long: `Run the source poller and the stage workers in one process: discovered
documents are deduplicated into work items, parsed, proofread, enriched with
suggestions, and published once a reviewer approves them.

Stages degrade individually: without GEMINI_API_KEY parsing falls back to
heuristics and suggestion generation is disabled; without a targets file the
publish worker is disabled. Configuration can be loaded from a JSON file
using --config; command-line arguments override config file values.`,
	RunE: runWorker,
}

var (
	workerConfigPath    string
	workerWatchDir      string
	workerTargetsFile   string
	workerTarget        string
	workerScreenshotDir string
	workerAPIKey        string
	workerDatabaseURL   string
	workerPollInterval  string
	workerLimit         int
	workerHeadless      bool
	workerVerbose       bool
)

func init() {
	workerCmd.Flags().StringVar(&workerConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	workerCmd.Flags().StringVar(&workerWatchDir, "watch-dir", "", "Directory polled for source documents")
	workerCmd.Flags().StringVar(&workerTargetsFile, "targets", "", "Path to YAML publish target profiles")
	workerCmd.Flags().StringVar(&workerTarget, "target", "", "Publish target profile name (defaults to the only profile)")
	workerCmd.Flags().StringVar(&workerScreenshotDir, "screenshot-dir", "", "Directory for publish step screenshots (empty disables them)")
	workerCmd.Flags().StringVar(&workerAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	workerCmd.Flags().StringVar(&workerDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	workerCmd.Flags().StringVar(&workerPollInterval, "poll-interval", "", "Source poll interval, e.g. 30s")
	workerCmd.Flags().IntVar(&workerLimit, "worker-limit", 0, "Maximum concurrent stage invocations")
	workerCmd.Flags().BoolVar(&workerHeadless, "headless", true, "Run the publish browser headless")
	workerCmd.Flags().BoolVarP(&workerVerbose, "verbose", "v", false, "Print the effective configuration on startup")

	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadFileConfig(workerConfigPath)
	if err != nil {
		return err
	}

	// CLI flags override config file values when explicitly set.
	if cmd.Flags().Changed("watch-dir") {
		cfg.WatchDir = workerWatchDir
	}
	if cmd.Flags().Changed("targets") {
		cfg.TargetsFile = workerTargetsFile
	}
	if cmd.Flags().Changed("target") {
		cfg.PublishTarget = workerTarget
	}
	if cmd.Flags().Changed("screenshot-dir") {
		cfg.ScreenshotDir = workerScreenshotDir
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = workerAPIKey
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = workerDatabaseURL
	}
	if cmd.Flags().Changed("poll-interval") {
		cfg.PollInterval = workerPollInterval
	}
	if cmd.Flags().Changed("worker-limit") {
		cfg.WorkerLimit = workerLimit
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = workerVerbose
	}

	cfg = cfg.MergeWithDefaults(config.Config{
		LogLevel:     "info",
		PollInterval: "30s",
		StageTimeout: "5m",
		BackoffBase:  "2s",
		WorkerLimit:  4,
		MaxRetries:   3,
		StepAttempts: 3,
	})

	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	if cfg.Verbose {
		fmt.Fprintf(os.Stdout, "Watch dir:     %s\n", orUnset(cfg.WatchDir))
		fmt.Fprintf(os.Stdout, "Targets file:  %s\n", orUnset(cfg.TargetsFile))
		fmt.Fprintf(os.Stdout, "Poll interval: %s\n", cfg.PollIntervalOrDefault())
		fmt.Fprintf(os.Stdout, "Stage timeout: %s\n", cfg.StageTimeoutOrDefault())
		fmt.Fprintf(os.Stdout, "Worker limit:  %d\n", cfg.WorkerLimit)
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

	var llmClient llm.Client
	if cfg.APIKey != "" {
		llmClient, err = llm.NewClient(ctx, llm.DefaultConfig(), cfg.APIKey)
		if err != nil {
			return fmt.Errorf("failed to create model client: %w", err)
		}
	} else {
		logger.Warn("GEMINI_API_KEY not set, parsing runs heuristics only and suggestion generation is disabled")
	}

	stages := worker.Stages{
		Parser:  parsing.NewParser(database, ledger, llmClient, 0, logger),
		Proofer: proofreading.NewService(database, ledger, llmClient, logger),
	}
	if llmClient != nil {
		stages.Optimizer = optimization.NewOptimizer(database, llmClient, logger)
	}

	if cfg.TargetsFile != "" {
		target, err := selectTarget(cfg.TargetsFile, cfg.PublishTarget)
		if err != nil {
			return err
		}
		agent, err := browser.NewAgent(target, workerHeadless, logger)
		if err != nil {
			return err
		}
		stages.Publisher = publishing.NewOrchestrator(database, ledger, agent, decisions, publishing.Config{
			Target:        target.Name,
			Taxonomy:      target.Taxonomy,
			ScreenshotDir: cfg.ScreenshotDir,
			BackoffBase:   cfg.BackoffBaseOrDefault(),
			StepAttempts:  cfg.StepAttempts,
		}, logger)
	} else {
		logger.Warn("no targets file configured, publish worker disabled")
	}

	var poller *source.Poller
	if cfg.WatchDir != "" {
		fsClient, err := source.NewFilesystemClient(cfg.WatchDir)
		if err != nil {
			return err
		}
		dedup := ingestion.NewDeduplicator(database, ledger, logger)
		poller = source.NewPoller(fsClient, dedup, cfg.PollIntervalOrDefault(), logger)
	} else {
		logger.Warn("no watch directory configured, source polling disabled")
	}

	pool := worker.NewPool(database, ledger, stages, worker.Config{
		Limit:        cfg.WorkerLimit,
		StageTimeout: cfg.StageTimeoutOrDefault(),
	}, logger)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, groupCtx := errgroup.WithContext(runCtx)
	if poller != nil {
		g.Go(func() error { return poller.Run(groupCtx) })
	}
	g.Go(func() error { return pool.Run(groupCtx) })

	logger.Info("worker started",
		"watch_dir", cfg.WatchDir,
		"publish", stages.Publisher != nil,
		"suggestions", stages.Optimizer != nil)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("worker stopped")
	return nil
}

func orUnset(value string) string {
	if value == "" {
		return "(not set)"
	}
	return value
}
