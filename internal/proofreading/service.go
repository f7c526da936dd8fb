package proofreading

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const actorProofreader = "proofreader"

// TriggerPipeline marks runs started by the background worker;
// reviewer-requested re-runs arrive through the same path after a
// rollback transition, so the trigger string is the caller's to set.
const TriggerPipeline = "pipeline"

// Store is the persistence surface the detection service needs.
type Store interface {
	GetDocument(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error)
	CreateProofreadingRun(ctx context.Context, workItemID uuid.UUID, trigger string) (*types.ProofreadingRun, error)
	InsertIssues(ctx context.Context, issues []types.Issue) error
}

// Service runs issue detection over a work item's canonical document and
// records the findings as a new proofreading run.
type Service struct {
	store  Store
	ledger *lifecycle.Ledger
	client llm.Client
	logger *slog.Logger
}

// NewService creates a Service. client may be nil to run the
// deterministic detectors only.
func NewService(store Store, ledger *lifecycle.Ledger, client llm.Client, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		ledger: ledger,
		client: client,
		logger: logger.With("component", "proofreader"),
	}
}

// Process proofreads an item already claimed into the proofreading status
// and advances it to proofreading_review. A detection failure marks the
// item failed with the proofread stage recorded.
func (s *Service) Process(ctx context.Context, item *types.WorkItem) error {
	run, err := s.Run(ctx, item.ID, TriggerPipeline)
	if err != nil {
		return s.fail(ctx, item, err)
	}

	if _, err := s.ledger.Transition(ctx, item, types.StatusProofreadingReview, actorProofreader,
		fmt.Sprintf("run %d found %d issues", run.Number, run.IssueCount)); err != nil {
		return fmt.Errorf("failed to advance proofread item: %w", err)
	}

	s.logger.Info("proofreading run complete",
		"work_item", item.ID,
		"run", run.Number,
		"issues", run.IssueCount)
	return nil
}

// Run executes every detector against the item's canonical document and
// stores the findings as a new run, superseding any earlier batch.
func (s *Service) Run(ctx context.Context, workItemID uuid.UUID, trigger string) (*types.ProofreadingRun, error) {
	doc, err := s.store.GetDocument(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("work item %s has no canonical document", workItemID)
	}

	issues := Detect(doc)
	if s.client != nil {
		found, err := DetectWithLLM(ctx, s.client, doc)
		if err != nil {
			return nil, err
		}
		issues = append(issues, found...)
	} else {
		s.logger.Warn("no model configured, running deterministic detectors only",
			"work_item", workItemID)
	}

	run, err := s.store.CreateProofreadingRun(ctx, workItemID, trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to create proofreading run: %w", err)
	}

	for i := range issues {
		issues[i].ID = uuid.New()
		issues[i].WorkItemID = workItemID
		issues[i].RunID = run.ID
	}
	if err := s.store.InsertIssues(ctx, issues); err != nil {
		return nil, fmt.Errorf("failed to store issues: %w", err)
	}

	run.IssueCount = len(issues)
	return run, nil
}

// Detect runs the deterministic rules over a canonical document.
func Detect(doc *types.CanonicalDocument) []types.Issue {
	var issues []types.Issue
	issues = append(issues, DetectRepeatedWords(doc.Body)...)
	issues = append(issues, DetectDoubleSpaces(doc.Body)...)
	issues = append(issues, DetectTrailingWhitespace(doc.Body)...)
	issues = append(issues, DetectPlaceholders(doc.Body)...)
	issues = append(issues, DetectMetaDescription(doc)...)
	issues = append(issues, DetectMissingAltText(doc)...)
	return issues
}

func (s *Service) fail(ctx context.Context, item *types.WorkItem, cause error) error {
	if _, err := s.ledger.MarkFailed(ctx, item, types.StageProofread, cause, actorProofreader); err != nil {
		return fmt.Errorf("failed to record proofreading failure: %w (cause: %v)", err, cause)
	}
	return cause
}
