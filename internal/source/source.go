// Package source provides gateways to document origins. A gateway lists
// changed documents and fetches their content; the pipeline never writes
// back to a source.
package source

import (
	"context"
	"time"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Change identifies a source document whose content may differ from what
// the pipeline last ingested.
type Change struct {
	SourceID    string
	RevisionTag string
	ModifiedAt  time.Time
}

// Client pulls documents from one origin.
type Client interface {
	// ListChanged returns documents modified since the given time.
	ListChanged(ctx context.Context, since time.Time) ([]Change, error)
	// FetchContent retrieves the full document for a source ID.
	FetchContent(ctx context.Context, sourceID string) (*types.SourceDocument, error)
}
