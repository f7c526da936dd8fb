// Package ingestion decides whether a discovered source document maps to an
// existing work item or starts a new one, and keeps repeated polls idempotent.
package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// MaxDocumentBytes is the largest raw document the pipeline accepts.
const MaxDocumentBytes = 10 << 20

// Store is the persistence surface the deduplicator needs.
type Store interface {
	GetWorkItemBySource(ctx context.Context, sourceID string) (*types.WorkItem, error)
	CreateWorkItem(ctx context.Context, sourceID, revisionTag string) (*types.WorkItem, error)
	SaveSourceDocument(ctx context.Context, workItemID uuid.UUID, doc *types.SourceDocument) error
	UpdateRevisionTag(ctx context.Context, workItemID uuid.UUID, revisionTag string) error
	DeleteDocument(ctx context.Context, workItemID uuid.UUID) error
	DeleteCurrentRun(ctx context.Context, workItemID uuid.UUID) error
	DeleteSuggestions(ctx context.Context, workItemID uuid.UUID) error
}

// Deduplicator maps source documents onto work items. One work item exists
// per source identifier; revisions of the same source reset that item rather
// than create a sibling.
type Deduplicator struct {
	store  Store
	ledger *lifecycle.Ledger
	logger *slog.Logger
}

// NewDeduplicator creates a deduplicator backed by the given store and ledger.
func NewDeduplicator(store Store, ledger *lifecycle.Ledger, logger *slog.Logger) *Deduplicator {
	return &Deduplicator{
		store:  store,
		ledger: ledger,
		logger: logger.With("component", "ingestion"),
	}
}

// ValidateDocument checks a source document before any write happens.
// Returns an *InvalidDocumentError describing the first failing field.
func ValidateDocument(doc *types.SourceDocument) error {
	if doc == nil {
		return &InvalidDocumentError{Message: "document is nil"}
	}
	if doc.SourceID == "" {
		return &InvalidDocumentError{Field: "source_id", Message: "must not be empty"}
	}
	if doc.RevisionTag == "" {
		return &InvalidDocumentError{Field: "revision_tag", Message: "must not be empty"}
	}
	if doc.Content == "" {
		return &InvalidDocumentError{Field: "content", Message: "document is empty"}
	}
	if len(doc.Content) > MaxDocumentBytes {
		return &InvalidDocumentError{
			Field:   "content",
			Message: fmt.Sprintf("document is %d bytes, limit is %d", len(doc.Content), MaxDocumentBytes),
		}
	}
	if !utf8.ValidString(doc.Content) {
		return &InvalidDocumentError{Field: "content", Message: "content is not valid UTF-8"}
	}
	return nil
}

// Ingest maps a discovered document onto a work item and returns its ID plus
// whether a new item was created.
//
// A source seen for the first time creates a pending work item with the raw
// snapshot attached. An unchanged revision is a no-op. A changed revision
// resets the existing item to pending, replaces the snapshot, and clears the
// stale canonical document, current proofreading run, and suggestions.
// Decisions and superseded runs stay queryable as history.
func (d *Deduplicator) Ingest(ctx context.Context, doc *types.SourceDocument) (uuid.UUID, bool, error) {
	if err := ValidateDocument(doc); err != nil {
		return uuid.Nil, false, err
	}

	existing, err := d.store.GetWorkItemBySource(ctx, doc.SourceID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to look up work item for %s: %w", doc.SourceID, err)
	}

	if existing == nil {
		return d.create(ctx, doc)
	}

	if existing.RevisionTag == doc.RevisionTag {
		d.logger.Debug("revision unchanged",
			"work_item", existing.ID,
			"source", doc.SourceID)
		return existing.ID, false, nil
	}

	if err := d.reset(ctx, existing, doc); err != nil {
		return uuid.Nil, false, err
	}
	return existing.ID, false, nil
}

func (d *Deduplicator) create(ctx context.Context, doc *types.SourceDocument) (uuid.UUID, bool, error) {
	item, err := d.store.CreateWorkItem(ctx, doc.SourceID, doc.RevisionTag)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to create work item for %s: %w", doc.SourceID, err)
	}
	if err := d.store.SaveSourceDocument(ctx, item.ID, doc); err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to save source snapshot: %w", err)
	}

	d.logger.Info("work item created",
		"work_item", item.ID,
		"source", doc.SourceID,
		"revision", doc.RevisionTag)
	return item.ID, true, nil
}

// reset returns an existing item to pending for a new revision. The ledger
// transition is the linearization point; the snapshot and cascade writes that
// follow are idempotent, and the revision tag on the work item is updated
// last so an interrupted reset is redone in full on the next poll.
func (d *Deduplicator) reset(ctx context.Context, item *types.WorkItem, doc *types.SourceDocument) error {
	if _, err := d.ledger.ResetForRevision(ctx, item, doc.RevisionTag, "ingestion"); err != nil {
		return fmt.Errorf("failed to reset work item %s: %w", item.ID, err)
	}

	if err := d.store.DeleteDocument(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to clear canonical document: %w", err)
	}
	if err := d.store.DeleteCurrentRun(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to clear current proofreading run: %w", err)
	}
	if err := d.store.DeleteSuggestions(ctx, item.ID); err != nil {
		return fmt.Errorf("failed to clear suggestions: %w", err)
	}
	if err := d.store.SaveSourceDocument(ctx, item.ID, doc); err != nil {
		return fmt.Errorf("failed to replace source snapshot: %w", err)
	}
	if err := d.store.UpdateRevisionTag(ctx, item.ID, doc.RevisionTag); err != nil {
		return fmt.Errorf("failed to update revision tag: %w", err)
	}

	d.logger.Info("work item reset for new revision",
		"work_item", item.ID,
		"source", doc.SourceID,
		"revision", doc.RevisionTag)
	return nil
}
