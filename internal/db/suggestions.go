package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// ReplaceSuggestions replaces all suggestions for the given fields in one
// transaction. Fields not present in the batch keep their existing
// suggestions.
func (db *DB) ReplaceSuggestions(ctx context.Context, workItemID uuid.UUID, suggestions []types.Suggestion) ([]types.Suggestion, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rErr := tx.Rollback(ctx); rErr != nil && rErr != pgx.ErrTxClosed {
			_ = rErr
		}
	}()

	fields := make(map[types.SuggestionField]bool)
	for _, s := range suggestions {
		fields[s.Field] = true
	}
	for field := range fields {
		_, err := tx.Exec(ctx,
			`DELETE FROM suggestions WHERE work_item_id = $1 AND field = $2`,
			workItemID, field,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to clear existing suggestions: %w", err)
		}
	}

	var result []types.Suggestion
	for _, input := range suggestions {
		var s types.Suggestion
		var itemsJSON []byte
		if len(input.Items) > 0 {
			itemsJSON, _ = json.Marshal(input.Items)
		}

		err := tx.QueryRow(ctx,
			`INSERT INTO suggestions (work_item_id, field, value, items, provenance, confidence, model)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, work_item_id, field, value, provenance, confidence, created_at`,
			workItemID, input.Field, input.Value, itemsJSON,
			input.Provenance, input.Confidence, nullIfEmpty(input.Model),
		).Scan(&s.ID, &s.WorkItemID, &s.Field, &s.Value, &s.Provenance,
			&s.Confidence, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to save suggestion: %w", err)
		}
		s.Items = input.Items
		s.Model = input.Model
		result = append(result, s)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit suggestions: %w", err)
	}
	return result, nil
}

// ListSuggestions retrieves suggestions for a work item
func (db *DB) ListSuggestions(ctx context.Context, workItemID uuid.UUID) ([]types.Suggestion, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, work_item_id, field, value, items, provenance, confidence, COALESCE(model, ''), created_at
		 FROM suggestions
		 WHERE work_item_id = $1
		 ORDER BY field, created_at`,
		workItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list suggestions: %w", err)
	}
	defer rows.Close()

	var suggestions []types.Suggestion
	for rows.Next() {
		var s types.Suggestion
		var itemsJSON []byte
		if err := rows.Scan(&s.ID, &s.WorkItemID, &s.Field, &s.Value, &itemsJSON,
			&s.Provenance, &s.Confidence, &s.Model, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan suggestion: %w", err)
		}
		if itemsJSON != nil {
			_ = json.Unmarshal(itemsJSON, &s.Items)
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// DeleteSuggestions removes all suggestions for a work item
func (db *DB) DeleteSuggestions(ctx context.Context, workItemID uuid.UUID) error {
	_, err := db.pool.Exec(ctx,
		`DELETE FROM suggestions WHERE work_item_id = $1`, workItemID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete suggestions: %w", err)
	}
	return nil
}
