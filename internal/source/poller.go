package source

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Ingestor accepts fetched documents into the pipeline.
type Ingestor interface {
	Ingest(ctx context.Context, doc *types.SourceDocument) (uuid.UUID, bool, error)
}

// Poller periodically scans a source client and feeds changed documents
// to the ingestor. One failed document does not stop the scan.
type Poller struct {
	client   Client
	ingestor Ingestor
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex
	lastPoll time.Time
}

// NewPoller creates a poller. A zero interval defaults to 30s.
func NewPoller(client Client, ingestor Ingestor, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		client:   client,
		ingestor: ingestor,
		interval: interval,
		logger:   logger.With("component", "poller"),
	}
}

// Run polls until the context is canceled. The first scan happens
// immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Scan(ctx)
	for {
		select {
		case <-ticker.C:
			p.Scan(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Scan performs one poll pass and returns how many documents were
// ingested as new or changed work.
func (p *Poller) Scan(ctx context.Context) int {
	p.mu.Lock()
	since := p.lastPoll
	started := time.Now()
	p.mu.Unlock()

	changes, err := p.client.ListChanged(ctx, since)
	if err != nil {
		p.logger.Error("source scan failed", "error", err)
		return 0
	}

	accepted := 0
	for _, change := range changes {
		doc, err := p.client.FetchContent(ctx, change.SourceID)
		if err != nil {
			p.logger.Error("fetch failed", "source_id", change.SourceID, "error", err)
			continue
		}

		id, created, err := p.ingestor.Ingest(ctx, doc)
		if err != nil {
			p.logger.Error("ingest failed", "source_id", change.SourceID, "error", err)
			continue
		}
		if created {
			p.logger.Info("ingested new document", "source_id", change.SourceID, "work_item", id)
		}
		accepted++
	}

	p.mu.Lock()
	p.lastPoll = started
	p.mu.Unlock()

	if len(changes) > 0 {
		p.logger.Info("scan complete", "changed", len(changes), "accepted", accepted)
	}
	return accepted
}
