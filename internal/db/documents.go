package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// SaveDocument stores the canonical document for a work item, replacing
// any previous parse wholesale
func (db *DB) SaveDocument(ctx context.Context, doc *types.CanonicalDocument) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = db.pool.Exec(ctx,
		`INSERT INTO documents (id, work_item_id, payload, parser, parsed_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (work_item_id) DO UPDATE SET
		     id = $1,
		     payload = $3,
		     parser = $4,
		     parsed_at = $5`,
		doc.ID, doc.WorkItemID, payload, doc.Parser, doc.ParsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}
	return nil
}

// GetDocument retrieves the canonical document for a work item
func (db *DB) GetDocument(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error) {
	var payload []byte
	err := db.pool.QueryRow(ctx,
		`SELECT payload FROM documents WHERE work_item_id = $1`,
		workItemID,
	).Scan(&payload)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	var doc types.CanonicalDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// DeleteDocument removes the canonical document when a revision resets the
// work item
func (db *DB) DeleteDocument(ctx context.Context, workItemID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM documents WHERE work_item_id = $1`, workItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// SetPublishedURL records the live URL on the stored document payload
func (db *DB) SetPublishedURL(ctx context.Context, workItemID uuid.UUID, url string) error {
	result, err := db.pool.Exec(ctx,
		`UPDATE documents
		 SET payload = jsonb_set(payload, '{published_url}', to_jsonb($1::text))
		 WHERE work_item_id = $2`,
		url, workItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to set published url: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("document not found for work item %s", workItemID)
	}
	return nil
}
