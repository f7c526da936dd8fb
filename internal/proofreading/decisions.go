package proofreading

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// DecisionStore is the persistence surface the decision ledger needs.
type DecisionStore interface {
	GetCurrentRun(ctx context.Context, workItemID uuid.UUID) (*types.ProofreadingRun, error)
	ListRunIssues(ctx context.Context, runID uuid.UUID) ([]types.Issue, error)
	GetIssue(ctx context.Context, issueID uuid.UUID) (*types.Issue, error)
	RecordDecision(ctx context.Context, input *types.Decision) (*types.Decision, error)
	ListCurrentDecisions(ctx context.Context, issueIDs []uuid.UUID) ([]types.Decision, error)
	ListDecisionHistory(ctx context.Context, workItemID uuid.UUID) ([]types.Decision, error)
	CountUndecidedIssues(ctx context.Context, runID uuid.UUID) (int, error)
}

// DecisionRequest carries one reviewer verdict on one issue.
type DecisionRequest struct {
	WorkItemID      uuid.UUID
	IssueID         uuid.UUID
	Kind            types.DecisionKind
	ModifiedContent string
	DecidedBy       string
	Note            string
}

// DecisionLedger records reviewer verdicts on detected issues. Recording
// is last-writer-wins per issue: the newest decision becomes current and
// every earlier one stays queryable as history. Decisions survive a
// re-run of detection so reviewer work is never discarded, but only
// decisions on the current run's issues count toward the publish gate.
type DecisionLedger struct {
	store  DecisionStore
	logger *slog.Logger
}

// NewDecisionLedger creates a DecisionLedger.
func NewDecisionLedger(store DecisionStore, logger *slog.Logger) *DecisionLedger {
	return &DecisionLedger{
		store:  store,
		logger: logger.With("component", "decisions"),
	}
}

// Record validates and stores one verdict, archiving any prior decision
// on the same issue.
func (dl *DecisionLedger) Record(ctx context.Context, req DecisionRequest) (*types.Decision, error) {
	if !req.Kind.IsValid() {
		return nil, &InvalidDecisionError{Reason: fmt.Sprintf("unknown kind %q", req.Kind)}
	}
	if req.Kind == types.DecisionModified && strings.TrimSpace(req.ModifiedContent) == "" {
		return nil, &InvalidDecisionError{Reason: "modified decision requires replacement content"}
	}
	if strings.TrimSpace(req.DecidedBy) == "" {
		return nil, &InvalidDecisionError{Reason: "reviewer identity required"}
	}

	issue, err := dl.store.GetIssue(ctx, req.IssueID)
	if err != nil {
		return nil, fmt.Errorf("failed to load issue: %w", err)
	}
	if issue == nil {
		return nil, fmt.Errorf("issue %s: %w", req.IssueID, ErrIssueNotFound)
	}
	if issue.WorkItemID != req.WorkItemID {
		return nil, &InvalidDecisionError{Reason: "issue belongs to a different work item"}
	}

	decision, err := dl.store.RecordDecision(ctx, &types.Decision{
		WorkItemID:      req.WorkItemID,
		IssueID:         req.IssueID,
		Kind:            req.Kind,
		ModifiedContent: req.ModifiedContent,
		DecidedBy:       req.DecidedBy,
		Note:            req.Note,
	})
	if err != nil {
		return nil, err
	}

	dl.logger.Info("decision recorded",
		"work_item", req.WorkItemID,
		"issue", req.IssueID,
		"kind", req.Kind,
		"decided_by", req.DecidedBy)
	return decision, nil
}

// GetDecisions returns the current decision for every decided issue of
// the item's latest proofreading run.
func (dl *DecisionLedger) GetDecisions(ctx context.Context, workItemID uuid.UUID) ([]types.Decision, error) {
	run, err := dl.store.GetCurrentRun(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load current run: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	issues, err := dl.store.ListRunIssues(ctx, run.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run issues: %w", err)
	}
	if len(issues) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	return dl.store.ListCurrentDecisions(ctx, ids)
}

// AllIssuesDecided reports whether every issue of the latest run has a
// current decision. This is the gate for ready_to_publish. An item with
// no run yet reports false.
func (dl *DecisionLedger) AllIssuesDecided(ctx context.Context, workItemID uuid.UUID) (bool, error) {
	run, err := dl.store.GetCurrentRun(ctx, workItemID)
	if err != nil {
		return false, fmt.Errorf("failed to load current run: %w", err)
	}
	if run == nil {
		return false, nil
	}

	undecided, err := dl.store.CountUndecidedIssues(ctx, run.ID)
	if err != nil {
		return false, err
	}
	return undecided == 0, nil
}

// History returns every decision ever recorded for the item, archived
// rows included, oldest first.
func (dl *DecisionLedger) History(ctx context.Context, workItemID uuid.UUID) ([]types.Decision, error) {
	return dl.store.ListDecisionHistory(ctx, workItemID)
}

// ResolveDocument returns the publish body for a document, with every
// accepted or modified decision of the current run applied to it.
func (dl *DecisionLedger) ResolveDocument(ctx context.Context, doc *types.CanonicalDocument) (string, error) {
	run, err := dl.store.GetCurrentRun(ctx, doc.WorkItemID)
	if err != nil {
		return "", fmt.Errorf("failed to load current run: %w", err)
	}
	if run == nil {
		return doc.Body, nil
	}

	issues, err := dl.store.ListRunIssues(ctx, run.ID)
	if err != nil {
		return "", fmt.Errorf("failed to list run issues: %w", err)
	}
	if len(issues) == 0 {
		return doc.Body, nil
	}

	ids := make([]uuid.UUID, len(issues))
	for i, issue := range issues {
		ids[i] = issue.ID
	}
	decisions, err := dl.store.ListCurrentDecisions(ctx, ids)
	if err != nil {
		return "", fmt.Errorf("failed to list decisions: %w", err)
	}

	return ResolveBody(doc.Body, issues, decisions)
}
