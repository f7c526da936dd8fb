package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// CreateProofreadingRun opens a new detection run for a work item. The run
// number increments per item; issues from earlier runs stay queryable but
// are superseded.
func (db *DB) CreateProofreadingRun(ctx context.Context, workItemID uuid.UUID, trigger string) (*types.ProofreadingRun, error) {
	var run types.ProofreadingRun
	err := db.pool.QueryRow(ctx,
		`INSERT INTO proofreading_runs (work_item_id, number, triggered_by)
		 VALUES ($1, COALESCE((SELECT MAX(number) FROM proofreading_runs WHERE work_item_id = $1), 0) + 1, $2)
		 RETURNING id, work_item_id, number, triggered_by, created_at`,
		workItemID, trigger,
	).Scan(&run.ID, &run.WorkItemID, &run.Number, &run.Trigger, &run.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create proofreading run: %w", err)
	}
	return &run, nil
}

// GetCurrentRun retrieves the latest proofreading run for a work item
func (db *DB) GetCurrentRun(ctx context.Context, workItemID uuid.UUID) (*types.ProofreadingRun, error) {
	var run types.ProofreadingRun
	err := db.pool.QueryRow(ctx,
		`SELECT r.id, r.work_item_id, r.number, r.triggered_by, r.created_at
		 FROM proofreading_runs r
		 WHERE r.work_item_id = $1
		 ORDER BY r.number DESC
		 LIMIT 1`,
		workItemID,
	).Scan(&run.ID, &run.WorkItemID, &run.Number, &run.Trigger, &run.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get current run: %w", err)
	}

	err = db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM issues WHERE run_id = $1`, run.ID,
	).Scan(&run.IssueCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count run issues: %w", err)
	}
	return &run, nil
}

// InsertIssues writes one detection batch. Issues are immutable once
// written, so this is insert-only.
func (db *DB) InsertIssues(ctx context.Context, issues []types.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			_ = rErr
		}
	}()

	for _, issue := range issues {
		var spanStart, spanEnd *int
		if issue.Span != nil {
			spanStart = &issue.Span.Start
			spanEnd = &issue.Span.End
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO issues (id, work_item_id, run_id, detector, category, severity,
			                     message, span_start, span_end, excerpt, replacement)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			issue.ID, issue.WorkItemID, issue.RunID, issue.Detector,
			issue.Category, issue.Severity, issue.Message,
			spanStart, spanEnd, nullIfEmpty(issue.Excerpt), nullIfEmpty(issue.Replacement),
		)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// IssueFilters holds optional filters for listing issues
type IssueFilters struct {
	RunID    uuid.UUID
	Severity types.IssueSeverity
	Category types.IssueCategory
}

// ListIssues retrieves issues for a run with optional filters
func (db *DB) ListIssues(ctx context.Context, filters IssueFilters) ([]types.Issue, error) {
	builder := psql.Select("id", "work_item_id", "run_id", "detector", "category",
		"severity", "message", "span_start", "span_end",
		"COALESCE(excerpt, '')", "COALESCE(replacement, '')", "created_at").
		From("issues").
		Where(sq.Eq{"run_id": filters.RunID}).
		OrderBy("span_start NULLS LAST", "created_at")
	if filters.Severity != "" {
		builder = builder.Where(sq.Eq{"severity": filters.Severity})
	}
	if filters.Category != "" {
		builder = builder.Where(sq.Eq{"category": filters.Category})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build issue query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, *issue)
	}
	return issues, nil
}

// ListRunIssues returns every issue of one run in document order.
func (db *DB) ListRunIssues(ctx context.Context, runID uuid.UUID) ([]types.Issue, error) {
	return db.ListIssues(ctx, IssueFilters{RunID: runID})
}

func scanIssue(row pgx.Row) (*types.Issue, error) {
	var issue types.Issue
	var spanStart, spanEnd *int
	if err := row.Scan(&issue.ID, &issue.WorkItemID, &issue.RunID, &issue.Detector,
		&issue.Category, &issue.Severity, &issue.Message,
		&spanStart, &spanEnd, &issue.Excerpt, &issue.Replacement,
		&issue.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}
	if spanStart != nil && spanEnd != nil {
		issue.Span = &types.Span{Start: *spanStart, End: *spanEnd}
	}
	return &issue, nil
}

// GetIssue retrieves a single issue by ID
func (db *DB) GetIssue(ctx context.Context, id uuid.UUID) (*types.Issue, error) {
	issue, err := scanIssue(db.pool.QueryRow(ctx,
		`SELECT id, work_item_id, run_id, detector, category, severity, message,
		        span_start, span_end, COALESCE(excerpt, ''), COALESCE(replacement, ''), created_at
		 FROM issues WHERE id = $1`,
		id,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return issue, nil
}

// DeleteCurrentRun removes the latest run and its issues. Used when a
// revision reset invalidates the in-flight detection results; earlier
// runs stay as history.
func (db *DB) DeleteCurrentRun(ctx context.Context, workItemID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM proofreading_runs
		 WHERE id = (SELECT id FROM proofreading_runs
		             WHERE work_item_id = $1
		             ORDER BY number DESC LIMIT 1)`,
		workItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete current run: %w", err)
	}
	return nil
}

// ListRuns retrieves all proofreading runs for a work item, oldest first
func (db *DB) ListRuns(ctx context.Context, workItemID uuid.UUID) ([]types.ProofreadingRun, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT r.id, r.work_item_id, r.number, r.triggered_by, r.created_at,
		        (SELECT COUNT(*) FROM issues i WHERE i.run_id = r.id)
		 FROM proofreading_runs r
		 WHERE r.work_item_id = $1
		 ORDER BY r.number`,
		workItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []types.ProofreadingRun
	for rows.Next() {
		var run types.ProofreadingRun
		if err := rows.Scan(&run.ID, &run.WorkItemID, &run.Number, &run.Trigger,
			&run.CreatedAt, &run.IssueCount); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, nil
}
