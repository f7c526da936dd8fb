package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// ErrPublishInFlight means a running publish task already exists for the
// work item. The partial unique index enforces this across processes.
var ErrPublishInFlight = errors.New("publish task already running for work item")

const publishTaskColumns = `id, work_item_id, target, status, attempt, COALESCE(failure_class, ''), COALESCE(failed_step, ''), COALESCE(error, ''), COALESCE(published_url, ''), started_at, completed_at`

func scanPublishTask(row pgx.Row) (*types.PublishTask, error) {
	var t types.PublishTask
	if err := row.Scan(&t.ID, &t.WorkItemID, &t.Target, &t.Status, &t.Attempt,
		&t.FailureClass, &t.FailedStep, &t.Error, &t.PublishedURL,
		&t.StartedAt, &t.CompletedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreatePublishTask opens a new running task for a work item. The partial
// unique index on running tasks makes this safe across worker processes:
// a second concurrent create returns ErrPublishInFlight.
func (db *DB) CreatePublishTask(ctx context.Context, workItemID uuid.UUID, target string) (*types.PublishTask, error) {
	task, err := scanPublishTask(db.pool.QueryRow(ctx,
		`INSERT INTO publish_tasks (work_item_id, target, status, attempt)
		 VALUES ($1, $2, 'running',
		         COALESCE((SELECT MAX(attempt) FROM publish_tasks WHERE work_item_id = $1), 0) + 1)
		 RETURNING `+publishTaskColumns,
		workItemID, target,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, ErrPublishInFlight
		}
		return nil, fmt.Errorf("failed to create publish task: %w", err)
	}
	return task, nil
}

// FinishPublishTask closes a task with its final status and failure detail
func (db *DB) FinishPublishTask(ctx context.Context, taskID uuid.UUID, status types.TaskStatus, failureClass types.FailureClass, failedStep, errMsg, publishedURL string) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE publish_tasks
		 SET status = $1, failure_class = $2, failed_step = $3, error = $4,
		     published_url = $5, completed_at = NOW()
		 WHERE id = $6`,
		status, nullIfEmpty(string(failureClass)), nullIfEmpty(failedStep),
		nullIfEmpty(errMsg), nullIfEmpty(publishedURL), taskID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish publish task: %w", err)
	}
	return nil
}

// GetPublishTask retrieves a publish task by ID
func (db *DB) GetPublishTask(ctx context.Context, id uuid.UUID) (*types.PublishTask, error) {
	task, err := scanPublishTask(db.pool.QueryRow(ctx,
		`SELECT `+publishTaskColumns+` FROM publish_tasks WHERE id = $1`, id,
	))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get publish task: %w", err)
	}
	return task, nil
}

// ListPublishTasks retrieves all publish tasks for a work item, oldest first
func (db *DB) ListPublishTasks(ctx context.Context, workItemID uuid.UUID) ([]types.PublishTask, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+publishTaskColumns+`
		 FROM publish_tasks
		 WHERE work_item_id = $1
		 ORDER BY attempt`,
		workItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list publish tasks: %w", err)
	}
	defer rows.Close()

	var tasks []types.PublishTask
	for rows.Next() {
		t, err := scanPublishTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan publish task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

// InsertStepRecord writes one step attempt audit row
func (db *DB) InsertStepRecord(ctx context.Context, rec *types.StepRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO step_records (id, task_id, step, seq, attempt, status,
		                           failure_class, error, screenshot_path,
		                           started_at, completed_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.TaskID, rec.Step, rec.Seq, rec.Attempt, rec.Status,
		nullIfEmpty(string(rec.FailureClass)), nullIfEmpty(rec.Error),
		nullIfEmpty(rec.ScreenshotPath), rec.StartedAt, rec.CompletedAt,
		rec.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to insert step record: %w", err)
	}
	return nil
}

// ListStepRecords retrieves a task's step audit trail in execution order
func (db *DB) ListStepRecords(ctx context.Context, taskID uuid.UUID) ([]types.StepRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, task_id, step, seq, attempt, status,
		        COALESCE(failure_class, ''), COALESCE(error, ''), COALESCE(screenshot_path, ''),
		        started_at, completed_at, duration_ms
		 FROM step_records
		 WHERE task_id = $1
		 ORDER BY seq, attempt`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}
	defer rows.Close()

	var records []types.StepRecord
	for rows.Next() {
		var rec types.StepRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Step, &rec.Seq, &rec.Attempt,
			&rec.Status, &rec.FailureClass, &rec.Error, &rec.ScreenshotPath,
			&rec.StartedAt, &rec.CompletedAt, &rec.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan step record: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
