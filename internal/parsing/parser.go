package parsing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const actorParser = "parser"

// Store is the persistence surface the parser needs.
type Store interface {
	GetSourceDocument(ctx context.Context, workItemID uuid.UUID) (*types.SourceDocument, error)
	SaveDocument(ctx context.Context, doc *types.CanonicalDocument) error
}

// Parser produces canonical documents from source snapshots and drives the
// parsing stage of the work item lifecycle.
type Parser struct {
	store  Store
	ledger *lifecycle.Ledger
	client llm.Client
	floor  float64
	logger *slog.Logger
}

// NewParser creates a Parser. client may be nil to run heuristics only;
// floor <= 0 selects DefaultConfidenceFloor.
func NewParser(store Store, ledger *lifecycle.Ledger, client llm.Client, floor float64, logger *slog.Logger) *Parser {
	if floor <= 0 {
		floor = DefaultConfidenceFloor
	}
	return &Parser{
		store:  store,
		ledger: ledger,
		client: client,
		floor:  floor,
		logger: logger.With("component", "parser"),
	}
}

// Process runs structural parsing for an item already claimed into the
// parsing status. Success persists the canonical document and advances the
// item to parsing_review. Any failure marks the item failed with the parse
// stage recorded, so no downstream stage ever sees an unparsed item.
func (p *Parser) Process(ctx context.Context, item *types.WorkItem) error {
	doc, err := p.Parse(ctx, item.ID)
	if err != nil {
		return p.fail(ctx, item, err)
	}

	if err := p.store.SaveDocument(ctx, doc); err != nil {
		return p.fail(ctx, item, fmt.Errorf("failed to save canonical document: %w", err))
	}

	if _, err := p.ledger.Transition(ctx, item, types.StatusParsingReview, actorParser,
		fmt.Sprintf("parsed by %s (confidence %.2f)", doc.Parser, doc.Confidence)); err != nil {
		return fmt.Errorf("failed to advance parsed item: %w", err)
	}

	p.logger.Info("document parsed",
		"work_item", item.ID,
		"parser", doc.Parser,
		"confidence", doc.Confidence,
		"media", len(doc.Media))
	return nil
}

// Parse builds the canonical document for a work item's source snapshot.
// The heuristic pass runs first; a result under the confidence floor hands
// the raw content to the model instead, at most once per invocation.
func (p *Parser) Parse(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error) {
	snapshot, err := p.store.GetSourceDocument(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, &ParseError{Message: "work item has no source snapshot"}
	}

	extraction := ExtractHeuristic(snapshot.Content)
	parser := ParserHeuristic

	if extraction.Confidence < p.floor {
		if p.client != nil {
			extraction, err = ExtractWithLLM(ctx, p.client, snapshot.Content)
			if err != nil {
				return nil, err
			}
			parser = ParserLLM
		} else {
			p.logger.Warn("accepting low confidence heuristic result, no model configured",
				"work_item", workItemID,
				"confidence", extraction.Confidence)
		}
	}

	if err := extraction.Validate(); err != nil {
		return nil, err
	}
	return extraction.Canonical(workItemID, parser), nil
}

// fail records a parse failure on the ledger and hands the original cause
// back to the caller.
func (p *Parser) fail(ctx context.Context, item *types.WorkItem, cause error) error {
	if _, err := p.ledger.MarkFailed(ctx, item, types.StageParse, cause, actorParser); err != nil {
		return fmt.Errorf("failed to record parse failure: %w (cause: %v)", err, cause)
	}
	return cause
}
