package db

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const workItemColumns = `id, source_id, revision_tag, status, version, retry_count, failed_stage, last_error, created_at, updated_at`

func scanWorkItem(row pgx.Row) (*types.WorkItem, error) {
	var item types.WorkItem
	var failedStage, lastErr *string
	err := row.Scan(&item.ID, &item.SourceID, &item.RevisionTag, &item.Status,
		&item.Version, &item.RetryCount, &failedStage, &lastErr,
		&item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if failedStage != nil {
		stage := types.Stage(*failedStage)
		item.FailedStage = &stage
	}
	item.LastError = lastErr
	return &item, nil
}

// CreateWorkItem inserts a new work item in pending status and returns it
func (db *DB) CreateWorkItem(ctx context.Context, sourceID, revisionTag string) (*types.WorkItem, error) {
	item, err := scanWorkItem(db.pool.QueryRow(ctx,
		`INSERT INTO work_items (source_id, revision_tag, status)
		 VALUES ($1, $2, 'pending')
		 RETURNING `+workItemColumns,
		sourceID, revisionTag,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create work item: %w", err)
	}
	return item, nil
}

// GetWorkItem retrieves a work item by ID
func (db *DB) GetWorkItem(ctx context.Context, id uuid.UUID) (*types.WorkItem, error) {
	item, err := scanWorkItem(db.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE id = $1`, id,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return item, nil
}

// GetWorkItemBySource retrieves a work item by its source identity key
func (db *DB) GetWorkItemBySource(ctx context.Context, sourceID string) (*types.WorkItem, error) {
	item, err := scanWorkItem(db.pool.QueryRow(ctx,
		`SELECT `+workItemColumns+` FROM work_items WHERE source_id = $1`, sourceID,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get work item by source: %w", err)
	}
	return item, nil
}

// WorkItemFilters holds optional filters for listing work items
type WorkItemFilters struct {
	Status   types.Status
	SourceID string
	Limit    int
}

// ListWorkItems retrieves work items with optional filters, newest first
func (db *DB) ListWorkItems(ctx context.Context, filters WorkItemFilters) ([]types.WorkItem, error) {
	if filters.Limit == 0 {
		filters.Limit = 50
	}

	builder := psql.Select(workItemColumns).
		From("work_items").
		OrderBy("created_at DESC").
		Limit(uint64(filters.Limit))
	if filters.Status != "" {
		builder = builder.Where(sq.Eq{"status": filters.Status})
	}
	if filters.SourceID != "" {
		builder = builder.Where(sq.Eq{"source_id": filters.SourceID})
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build work item query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, *item)
	}
	return items, nil
}

// ListClaimable picks the oldest items in the given status for a stage
// worker. The caller still transitions each item optimistically; this is
// only a read ordered oldest-first to keep the queue fair.
func (db *DB) ListClaimable(ctx context.Context, status types.Status, limit int) ([]types.WorkItem, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args, err := psql.Select(workItemColumns).
		From("work_items").
		Where(sq.Eq{"status": status}).
		OrderBy("updated_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build claim query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list claimable work items: %w", err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, *item)
	}
	return items, nil
}

// ListSuggestionCandidates picks items sitting in parsing review with no
// stored suggestions, oldest first. The optimize worker fills them in
// while the operator reviews the parse.
func (db *DB) ListSuggestionCandidates(ctx context.Context, limit int) ([]types.WorkItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+workItemColumns+` FROM work_items
		 WHERE status = 'parsing_review'
		   AND NOT EXISTS (SELECT 1 FROM suggestions s WHERE s.work_item_id = work_items.id)
		 ORDER BY updated_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestion candidates: %w", err)
	}
	defer rows.Close()

	var items []types.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, *item)
	}
	return items, nil
}

// CountWorkItemsByStatus returns the number of work items per status
func (db *DB) CountWorkItemsByStatus(ctx context.Context) (map[types.Status]int, error) {
	query, args, err := psql.Select("status", "COUNT(*)").
		From("work_items").
		GroupBy("status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build count query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count work items: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Status]int)
	for rows.Next() {
		var status types.Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, nil
}

// CountFailuresByStage returns the number of failed work items per
// originating stage.
func (db *DB) CountFailuresByStage(ctx context.Context) (map[types.Stage]int, error) {
	query, args, err := psql.Select("failed_stage", "COUNT(*)").
		From("work_items").
		Where(sq.Eq{"status": types.StatusFailed}).
		Where(sq.NotEq{"failed_stage": nil}).
		GroupBy("failed_stage").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build failure count query: %w", err)
	}

	rows, err := db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count failures: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.Stage]int)
	for rows.Next() {
		var stage types.Stage
		var count int
		if err := rows.Scan(&stage, &count); err != nil {
			return nil, fmt.Errorf("failed to scan failure count: %w", err)
		}
		counts[stage] = count
	}
	return counts, nil
}

// ApplyTransition atomically updates a work item's status guarded by the
// expected status and version, and appends the history row in the same
// transaction. Zero matched rows surface lifecycle.ErrStaleStatus, or
// lifecycle.ErrNotFound when the item does not exist at all.
func (db *DB) ApplyTransition(ctx context.Context, req lifecycle.TransitionRequest) (*types.WorkItem, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			_ = rErr
		}
	}()

	query := `UPDATE work_items
	          SET status = $1, version = version + 1, updated_at = NOW()`
	args := []any{req.To}
	argNum := 2

	if req.SetRetryCount != nil {
		query += fmt.Sprintf(", retry_count = $%d", argNum)
		args = append(args, *req.SetRetryCount)
		argNum++
	}
	if req.SetFailure != nil {
		query += fmt.Sprintf(", failed_stage = $%d, last_error = $%d", argNum, argNum+1)
		args = append(args, string(req.SetFailure.Stage), nullIfEmpty(req.SetFailure.Error))
		argNum += 2
	} else if req.ClearFailure {
		query += ", failed_stage = NULL, last_error = NULL"
	}

	query += fmt.Sprintf(" WHERE id = $%d AND status = $%d AND version = $%d RETURNING "+workItemColumns,
		argNum, argNum+1, argNum+2)
	args = append(args, req.WorkItemID, req.From, req.Version)

	item, err := scanWorkItem(tx.QueryRow(ctx, query, args...))
	if err != nil {
		if err == pgx.ErrNoRows {
			exists, exErr := db.workItemExists(ctx, tx, req.WorkItemID)
			if exErr != nil {
				return nil, exErr
			}
			if !exists {
				return nil, lifecycle.ErrNotFound
			}
			return nil, lifecycle.ErrStaleStatus
		}
		return nil, fmt.Errorf("failed to update work item status: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO status_transitions (work_item_id, from_status, to_status, actor, reason)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.WorkItemID, req.From, req.To, req.Actor, nullIfEmpty(req.Reason),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record status transition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}
	return item, nil
}

func (db *DB) workItemExists(ctx context.Context, tx pgx.Tx, id uuid.UUID) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM work_items WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check work item existence: %w", err)
	}
	return exists, nil
}

// ListTransitions retrieves the status history of a work item, oldest first
func (db *DB) ListTransitions(ctx context.Context, workItemID uuid.UUID) ([]types.StatusTransition, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, work_item_id, from_status, to_status, actor, COALESCE(reason, ''), created_at
		 FROM status_transitions
		 WHERE work_item_id = $1
		 ORDER BY created_at`,
		workItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	defer rows.Close()

	var transitions []types.StatusTransition
	for rows.Next() {
		var tr types.StatusTransition
		if err := rows.Scan(&tr.ID, &tr.WorkItemID, &tr.FromStatus, &tr.ToStatus,
			&tr.Actor, &tr.Reason, &tr.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition: %w", err)
		}
		transitions = append(transitions, tr)
	}
	return transitions, nil
}

// UpdateRevisionTag records the new revision on the work item row
func (db *DB) UpdateRevisionTag(ctx context.Context, workItemID uuid.UUID, revisionTag string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE work_items SET revision_tag = $1, updated_at = NOW() WHERE id = $2`,
		revisionTag, workItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to update revision tag: %w", err)
	}
	return nil
}
