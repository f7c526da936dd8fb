package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kingofalbert/cms-automation-sub000/internal/browser"
	"github.com/kingofalbert/cms-automation-sub000/internal/config"
	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/logging"
	"github.com/kingofalbert/cms-automation-sub000/internal/observability"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/publishing"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish one approved work item now",
	Long: `Run the publish script for a single work item without waiting for the
background worker. The item must be ready to publish: parsing confirmed and
every proofreading issue decided. Accepted and modified decisions are applied
to the body before it is filled into the target's editor.`,
	RunE: runPublish,
}

var (
	publishConfigPath    string
	publishItem          string
	publishTargetsFile   string
	publishTargetName    string
	publishScreenshotDir string
	publishDBURL         string
	publishHeadless      bool
	publishVerbose       bool
)

func init() {
	publishCmd.Flags().StringVar(&publishConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	publishCmd.Flags().StringVarP(&publishItem, "item", "i", "", "Work item ID or source path (required)")
	publishCmd.Flags().StringVar(&publishTargetsFile, "targets", "", "Path to YAML publish target profiles")
	publishCmd.Flags().StringVar(&publishTargetName, "target", "", "Publish target profile name (defaults to the only profile)")
	publishCmd.Flags().StringVar(&publishScreenshotDir, "screenshot-dir", "", "Directory for publish step screenshots (empty disables them)")
	publishCmd.Flags().StringVar(&publishDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	publishCmd.Flags().BoolVar(&publishHeadless, "headless", true, "Run the browser headless")
	publishCmd.Flags().BoolVarP(&publishVerbose, "verbose", "v", false, "Print the publish attempt history afterwards")

	publishCmd.MarkFlagRequired("item")

	rootCmd.AddCommand(publishCmd)
}

func runPublish(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadFileConfig(publishConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("targets") {
		cfg.TargetsFile = publishTargetsFile
	}
	if cmd.Flags().Changed("target") {
		cfg.PublishTarget = publishTargetName
	}
	if cmd.Flags().Changed("screenshot-dir") {
		cfg.ScreenshotDir = publishScreenshotDir
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = publishDBURL
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

	item, err := findWorkItem(ctx, database, publishItem)
	if err != nil {
		return err
	}
	if item.Status != types.StatusReadyToPublish {
		return fmt.Errorf("work item %s is %s; only %s items can be published",
			item.ID, item.Status, types.StatusReadyToPublish)
	}

	target, err := selectTarget(cfg.TargetsFile, cfg.PublishTarget)
	if err != nil {
		return err
	}
	agent, err := browser.NewAgent(target, publishHeadless, logger)
	if err != nil {
		return err
	}

	ledger := lifecycle.NewLedger(database, cfg.MaxRetries, logger)
	decisions := proofreading.NewDecisionLedger(database, logger)
	orch := publishing.NewOrchestrator(database, ledger, agent, decisions, publishing.Config{
		Target:        target.Name,
		Taxonomy:      target.Taxonomy,
		ScreenshotDir: cfg.ScreenshotDir,
		BackoffBase:   cfg.BackoffBaseOrDefault(),
		StepAttempts:  cfg.StepAttempts,
	}, logger)

	// Ctrl-C cancels the script after the current step; the task is
	// finished as canceled and the audit rows survive.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := orch.Process(runCtx, item); err != nil {
		if publishVerbose {
			printPublishAttempts(ctx, database, item)
		}
		return fmt.Errorf("publish failed: %w", err)
	}

	doc, err := database.GetDocument(ctx, item.ID)
	if err == nil && doc != nil && doc.PublishedURL != "" {
		fmt.Fprintf(os.Stdout, "Published: %s\n", doc.PublishedURL)
	}
	if publishVerbose {
		printPublishAttempts(ctx, database, item)
	}
	return nil
}

func printPublishAttempts(ctx context.Context, database *db.DB, item *types.WorkItem) {
	tasks, err := database.ListPublishTasks(ctx, item.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list publish tasks: %v\n", err)
		return
	}
	observability.NewPrinter(os.Stdout).PrintPublishAttempts(tasks)
}

// selectTarget loads the targets file and picks the named profile. An
// empty name selects the file's only profile.
func selectTarget(targetsFile, name string) (*config.Target, error) {
	if targetsFile == "" {
		return nil, fmt.Errorf("--targets flag or targets_file config value is required")
	}
	tc, err := config.LoadTargets(targetsFile)
	if err != nil {
		return nil, err
	}
	if errs := config.ValidateTargets(tc); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "targets: %s\n", e)
		}
		return nil, fmt.Errorf("targets file %s has %d validation error(s)", targetsFile, len(errs))
	}

	if name == "" {
		if len(tc.Targets) == 1 {
			return &tc.Targets[0], nil
		}
		return nil, fmt.Errorf("--target is required when %s defines multiple targets", targetsFile)
	}
	target := tc.Get(name)
	if target == nil {
		names := make([]string, len(tc.Targets))
		for i, t := range tc.Targets {
			names[i] = t.Name
		}
		return nil, fmt.Errorf("target %q not found in %s (available: %s)",
			name, targetsFile, strings.Join(names, ", "))
	}
	return target, nil
}
