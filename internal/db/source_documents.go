package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// SaveSourceDocument stores or replaces the raw snapshot for a work item
func (db *DB) SaveSourceDocument(ctx context.Context, workItemID uuid.UUID, doc *types.SourceDocument) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO source_documents (work_item_id, source_id, revision_tag, title, content, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (work_item_id) DO UPDATE SET
		     revision_tag = $3,
		     title = $4,
		     content = $5,
		     fetched_at = $6,
		     stored_at = NOW()`,
		workItemID, doc.SourceID, doc.RevisionTag, nullIfEmpty(doc.Title), doc.Content, doc.FetchedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save source document: %w", err)
	}
	return nil
}

// GetSourceDocument retrieves the raw snapshot for a work item
func (db *DB) GetSourceDocument(ctx context.Context, workItemID uuid.UUID) (*types.SourceDocument, error) {
	var doc types.SourceDocument
	var title *string
	err := db.pool.QueryRow(ctx,
		`SELECT source_id, revision_tag, title, content, fetched_at
		 FROM source_documents WHERE work_item_id = $1`,
		workItemID,
	).Scan(&doc.SourceID, &doc.RevisionTag, &title, &doc.Content, &doc.FetchedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get source document: %w", err)
	}
	if title != nil {
		doc.Title = *title
	}
	return &doc, nil
}
