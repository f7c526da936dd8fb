package lifecycle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// TransitionRequest is one atomic status change. The store applies the
// conditional update and the history insert in a single transaction.
type TransitionRequest struct {
	WorkItemID uuid.UUID
	From       types.Status
	To         types.Status
	Version    int
	Actor      string
	Reason     string

	// Optional bookkeeping applied with the status change
	SetRetryCount *int
	SetFailure    *FailureDetail
	ClearFailure  bool
}

// FailureDetail carries the originating stage and message for a failure.
type FailureDetail struct {
	Stage types.Stage
	Error string
}

// Store is the persistence surface the ledger needs.
type Store interface {
	GetWorkItem(ctx context.Context, id uuid.UUID) (*types.WorkItem, error)
	ApplyTransition(ctx context.Context, req TransitionRequest) (*types.WorkItem, error)
	ListTransitions(ctx context.Context, workItemID uuid.UUID) ([]types.StatusTransition, error)
}

// Ledger validates and applies work item status transitions.
type Ledger struct {
	store      Store
	maxRetries int
	logger     *slog.Logger
}

// NewLedger creates a Ledger. maxRetries caps operator retries of failed
// items; zero means the default of 3.
func NewLedger(store Store, maxRetries int, logger *slog.Logger) *Ledger {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:      store,
		maxRetries: maxRetries,
		logger:     logger.With("component", "lifecycle"),
	}
}

// Transition moves a work item to a new status, validating the edge and
// using the item's current status and version as the optimistic guard.
// Illegal edges return *InvalidTransitionError without touching the store.
func (l *Ledger) Transition(ctx context.Context, item *types.WorkItem, to types.Status, actor, reason string) (*types.WorkItem, error) {
	if !to.IsValid() {
		return nil, fmt.Errorf("unknown status %q", to)
	}
	if !Allowed(item.Status, to) {
		return nil, &InvalidTransitionError{From: item.Status, To: to}
	}

	updated, err := l.store.ApplyTransition(ctx, TransitionRequest{
		WorkItemID: item.ID,
		From:       item.Status,
		To:         to,
		Version:    item.Version,
		Actor:      actor,
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("status transition",
		"work_item", item.ID,
		"from", item.Status,
		"to", to,
		"actor", actor)
	return updated, nil
}

// MarkFailed transitions a running item to failed, recording the
// originating stage and error message for retry routing and inspection.
func (l *Ledger) MarkFailed(ctx context.Context, item *types.WorkItem, stage types.Stage, cause error, actor string) (*types.WorkItem, error) {
	if !Allowed(item.Status, types.StatusFailed) {
		return nil, &InvalidTransitionError{From: item.Status, To: types.StatusFailed}
	}

	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	updated, err := l.store.ApplyTransition(ctx, TransitionRequest{
		WorkItemID: item.ID,
		From:       item.Status,
		To:         types.StatusFailed,
		Version:    item.Version,
		Actor:      actor,
		Reason:     msg,
		SetFailure: &FailureDetail{Stage: stage, Error: msg},
	})
	if err != nil {
		return nil, err
	}

	l.logger.Warn("work item failed",
		"work_item", item.ID,
		"stage", stage,
		"error", msg)
	return updated, nil
}

// RetryFailed routes a failed item back to the queue status of the stage
// it failed in. The retry counter increments; requests beyond the ceiling
// return *RetryCeilingError and leave the item untouched.
func (l *Ledger) RetryFailed(ctx context.Context, item *types.WorkItem, actor string) (*types.WorkItem, error) {
	if item.Status != types.StatusFailed {
		return nil, &InvalidTransitionError{From: item.Status, To: types.StatusPending}
	}
	if item.RetryCount >= l.maxRetries {
		return nil, &RetryCeilingError{
			WorkItemID: item.ID,
			Attempts:   item.RetryCount,
			Ceiling:    l.maxRetries,
		}
	}

	target := types.StatusPending
	if item.FailedStage != nil {
		target = item.FailedStage.QueueStatus()
	}
	retries := item.RetryCount + 1

	updated, err := l.store.ApplyTransition(ctx, TransitionRequest{
		WorkItemID:    item.ID,
		From:          item.Status,
		To:            target,
		Version:       item.Version,
		Actor:         actor,
		Reason:        fmt.Sprintf("retry %d of %d", retries, l.maxRetries),
		SetRetryCount: &retries,
		ClearFailure:  true,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("work item retried",
		"work_item", item.ID,
		"target", target,
		"attempt", retries)
	return updated, nil
}

// ResetForRevision returns an item to pending because its source document
// changed. Allowed from every status except publishing: an in-flight
// publish session must finish or fail before the item can restart.
func (l *Ledger) ResetForRevision(ctx context.Context, item *types.WorkItem, revisionTag, actor string) (*types.WorkItem, error) {
	if item.Status == types.StatusPublishing {
		return nil, &InvalidTransitionError{From: item.Status, To: types.StatusPending}
	}
	if item.Status == types.StatusPending && item.RevisionTag == revisionTag {
		return item, nil
	}

	zero := 0
	updated, err := l.store.ApplyTransition(ctx, TransitionRequest{
		WorkItemID:    item.ID,
		From:          item.Status,
		To:            types.StatusPending,
		Version:       item.Version,
		Actor:         actor,
		Reason:        fmt.Sprintf("revision %s", revisionTag),
		SetRetryCount: &zero,
		ClearFailure:  true,
	})
	if err != nil {
		return nil, err
	}

	l.logger.Info("work item reset for revision",
		"work_item", item.ID,
		"revision", revisionTag,
		"previous_status", item.Status)
	return updated, nil
}

// History returns the item's transition rows, oldest first.
func (l *Ledger) History(ctx context.Context, workItemID uuid.UUID) ([]types.StatusTransition, error) {
	return l.store.ListTransitions(ctx, workItemID)
}

// MaxRetries exposes the configured retry ceiling.
func (l *Ledger) MaxRetries() int {
	return l.maxRetries
}
