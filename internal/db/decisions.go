package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const decisionColumns = `id, work_item_id, issue_id, kind, COALESCE(modified_content, ''), decided_by, COALESCE(note, ''), is_current, created_at, superseded_at`

func scanDecision(row pgx.Row) (*types.Decision, error) {
	var d types.Decision
	if err := row.Scan(&d.ID, &d.WorkItemID, &d.IssueID, &d.Kind,
		&d.ModifiedContent, &d.DecidedBy, &d.Note, &d.IsCurrent,
		&d.CreatedAt, &d.SupersededAt); err != nil {
		return nil, fmt.Errorf("failed to scan decision: %w", err)
	}
	return &d, nil
}

// RecordDecision appends a decision for an issue. Any existing current
// decision is archived in the same transaction, so re-deciding keeps the
// full history while exactly one row per issue stays current.
func (db *DB) RecordDecision(ctx context.Context, input *types.Decision) (*types.Decision, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			_ = rErr
		}
	}()

	_, err = tx.Exec(ctx,
		`UPDATE decisions
		 SET is_current = FALSE, superseded_at = NOW()
		 WHERE issue_id = $1 AND is_current`,
		input.IssueID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to archive prior decision: %w", err)
	}

	decision, err := scanDecision(tx.QueryRow(ctx,
		`INSERT INTO decisions (work_item_id, issue_id, kind, modified_content, decided_by, note)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+decisionColumns,
		input.WorkItemID, input.IssueID, input.Kind,
		nullIfEmpty(input.ModifiedContent), input.DecidedBy, nullIfEmpty(input.Note),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit decision: %w", err)
	}
	return decision, nil
}

// ListCurrentDecisions retrieves the current decision per issue for the
// given issues
func (db *DB) ListCurrentDecisions(ctx context.Context, issueIDs []uuid.UUID) ([]types.Decision, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+decisionColumns+`
		 FROM decisions
		 WHERE issue_id = ANY($1) AND is_current
		 ORDER BY created_at`,
		issueIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list current decisions: %w", err)
	}
	defer rows.Close()

	var decisions []types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *d)
	}
	return decisions, nil
}

// ListDecisionHistory retrieves every decision ever recorded for a work
// item, including archived rows, oldest first
func (db *DB) ListDecisionHistory(ctx context.Context, workItemID uuid.UUID) ([]types.Decision, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+decisionColumns+`
		 FROM decisions
		 WHERE work_item_id = $1
		 ORDER BY created_at`,
		workItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list decision history: %w", err)
	}
	defer rows.Close()

	var decisions []types.Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *d)
	}
	return decisions, nil
}

// CountUndecidedIssues returns how many issues of a run have no current
// decision. Zero means the run is fully decided and the item may move to
// ready_to_publish.
func (db *DB) CountUndecidedIssues(ctx context.Context, runID uuid.UUID) (int, error) {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM issues i
		 WHERE i.run_id = $1
		   AND NOT EXISTS (
		       SELECT 1 FROM decisions d
		       WHERE d.issue_id = i.id AND d.is_current
		   )`,
		runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count undecided issues: %w", err)
	}
	return count, nil
}
