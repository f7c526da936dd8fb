package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (
    version    INTEGER PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS work_items (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    source_id    TEXT NOT NULL UNIQUE,
    revision_tag TEXT NOT NULL,
    status       TEXT NOT NULL DEFAULT 'pending',
    version      INTEGER NOT NULL DEFAULT 1,
    retry_count  INTEGER NOT NULL DEFAULT 0,
    failed_stage TEXT,
    last_error   TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_work_items_status ON work_items(status, updated_at);

CREATE TABLE IF NOT EXISTS source_documents (
    work_item_id UUID PRIMARY KEY REFERENCES work_items(id) ON DELETE CASCADE,
    source_id    TEXT NOT NULL,
    revision_tag TEXT NOT NULL,
    title        TEXT,
    content      TEXT NOT NULL,
    fetched_at   TIMESTAMPTZ NOT NULL,
    stored_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS status_transitions (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    from_status  TEXT NOT NULL,
    to_status    TEXT NOT NULL,
    actor        TEXT NOT NULL,
    reason       TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_transitions_item ON status_transitions(work_item_id, created_at);

CREATE TABLE IF NOT EXISTS documents (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id UUID NOT NULL UNIQUE REFERENCES work_items(id) ON DELETE CASCADE,
    payload      JSONB NOT NULL,
    parser       TEXT NOT NULL,
    parsed_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS suggestions (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    field        TEXT NOT NULL,
    value        TEXT NOT NULL,
    items        JSONB,
    provenance   TEXT NOT NULL,
    confidence   DOUBLE PRECISION NOT NULL DEFAULT 0,
    model        TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_suggestions_item ON suggestions(work_item_id, field);

CREATE TABLE IF NOT EXISTS proofreading_runs (
    id           UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    number       INTEGER NOT NULL,
    triggered_by TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (work_item_id, number)
);

CREATE TABLE IF NOT EXISTS issues (
    id           UUID PRIMARY KEY,
    work_item_id UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    run_id       UUID NOT NULL REFERENCES proofreading_runs(id) ON DELETE CASCADE,
    detector     TEXT NOT NULL,
    category     TEXT NOT NULL,
    severity     TEXT NOT NULL,
    message      TEXT NOT NULL,
    span_start   INTEGER,
    span_end     INTEGER,
    excerpt      TEXT,
    replacement  TEXT,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_issues_run ON issues(run_id);

-- decisions reference issues by value, not by foreign key: the decision
-- ledger outlives the issues it judged when a revision resets the item
CREATE TABLE IF NOT EXISTS decisions (
    id               UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id     UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    issue_id         UUID NOT NULL,
    kind             TEXT NOT NULL,
    modified_content TEXT,
    decided_by       TEXT NOT NULL,
    note             TEXT,
    is_current       BOOLEAN NOT NULL DEFAULT TRUE,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    superseded_at    TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_decisions_current ON decisions(issue_id) WHERE is_current;
CREATE INDEX IF NOT EXISTS idx_decisions_item ON decisions(work_item_id, created_at);

CREATE TABLE IF NOT EXISTS publish_tasks (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    work_item_id  UUID NOT NULL REFERENCES work_items(id) ON DELETE CASCADE,
    target        TEXT NOT NULL,
    status        TEXT NOT NULL,
    attempt       INTEGER NOT NULL,
    failure_class TEXT,
    failed_step   TEXT,
    error         TEXT,
    published_url TEXT,
    started_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at  TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_publish_single_flight ON publish_tasks(work_item_id) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS step_records (
    id              UUID PRIMARY KEY,
    task_id         UUID NOT NULL REFERENCES publish_tasks(id) ON DELETE CASCADE,
    step            TEXT NOT NULL,
    seq             INTEGER NOT NULL,
    attempt         INTEGER NOT NULL,
    status          TEXT NOT NULL,
    failure_class   TEXT,
    error           TEXT,
    screenshot_path TEXT,
    started_at      TIMESTAMPTZ NOT NULL,
    completed_at    TIMESTAMPTZ NOT NULL,
    duration_ms     BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_step_records_task ON step_records(task_id, seq, attempt);
`

// Migrate applies the database schema if it has not been applied yet.
func (db *DB) Migrate(ctx context.Context) error {
	var count int
	err := db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM schema_version WHERE version = 1`,
	).Scan(&count)
	if err == nil && count > 0 {
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

	if _, err := tx.Exec(ctx, schemaV1); err != nil {
		return fmt.Errorf("failed to apply schema v1: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING`); err != nil {
		return fmt.Errorf("failed to record schema version: %w", err)
	}
	return tx.Commit(ctx)
}

// Reset drops all pipeline tables and re-applies the schema. Used by
// integration tests only.
func (db *DB) Reset(ctx context.Context) error {
	tables := []string{
		"step_records", "publish_tasks", "decisions", "issues",
		"proofreading_runs", "suggestions", "documents",
		"status_transitions", "source_documents", "work_items",
		"schema_version",
	}
	for _, t := range tables {
		if _, err := db.pool.Exec(ctx, "DROP TABLE IF EXISTS "+t+" CASCADE"); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", t, err)
		}
	}
	return db.Migrate(ctx)
}
