package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/observability"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print pipeline state",
	Long: `Without --item, print how many work items sit in each status. With
--item, print everything known about one work item: its parsed document,
proofreading issues, publish attempts, and full status history. The item
can be named by its ID or by its source path.`,
	RunE: runStatus,
}

var (
	statusConfigPath string
	statusItem       string
	statusDBURL      string
)

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	statusCmd.Flags().StringVarP(&statusItem, "item", "i", "", "Work item ID or source path")
	statusCmd.Flags().StringVar(&statusDBURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadFileConfig(statusConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = statusDBURL
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	printer := observability.NewPrinter(os.Stdout)

	if statusItem == "" {
		counts, err := database.CountWorkItemsByStatus(ctx)
		if err != nil {
			return fmt.Errorf("failed to count work items: %w", err)
		}
		printer.PrintQueue(counts)

		failures, err := database.CountFailuresByStage(ctx)
		if err != nil {
			return fmt.Errorf("failed to count failures: %w", err)
		}
		printer.PrintFailures(failures)
		return nil
	}

	item, err := findWorkItem(ctx, database, statusItem)
	if err != nil {
		return err
	}
	printer.PrintWorkItem(item)

	doc, err := database.GetDocument(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load document: %w", err)
	}
	if doc != nil {
		printer.PrintDocument(doc)
	}

	run, err := database.GetCurrentRun(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load proofreading run: %w", err)
	}
	if run != nil {
		issues, err := database.ListRunIssues(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to list issues: %w", err)
		}
		undecided, err := database.CountUndecidedIssues(ctx, run.ID)
		if err != nil {
			return fmt.Errorf("failed to count undecided issues: %w", err)
		}
		printer.PrintIssues(run, issues, run.IssueCount-undecided)
	}

	tasks, err := database.ListPublishTasks(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to list publish tasks: %w", err)
	}
	printer.PrintPublishAttempts(tasks)

	transitions, err := database.ListTransitions(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}
	printer.PrintHistory(transitions)
	return nil
}

// findWorkItem resolves a work item reference: a UUID looks the item up
// by ID, anything else is treated as a source path.
func findWorkItem(ctx context.Context, database *db.DB, ref string) (*types.WorkItem, error) {
	if id, err := uuid.Parse(ref); err == nil {
		item, err := database.GetWorkItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to load work item: %w", err)
		}
		if item == nil {
			return nil, fmt.Errorf("work item %s not found", ref)
		}
		return item, nil
	}

	item, err := database.GetWorkItemBySource(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to look up source %q: %w", ref, err)
	}
	if item == nil {
		return nil, fmt.Errorf("no work item for source %q", ref)
	}
	return item, nil
}
