// Package worker runs the background loops that move work items through
// the pipeline. Each stage polls its queue status on a shared ticker,
// claims items optimistically through the status ledger, and hands them
// to the stage service under a per-invocation timeout.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const actorWorker = "worker"

// maxSuggestAttempts caps how often the optimize loop retries one item
// before leaving it alone until the process restarts. Suggestions are
// an enrichment; a persistently failing model call must not spam the
// provider on every tick.
const maxSuggestAttempts = 3

// Store is the read surface the pool polls for claimable work.
type Store interface {
	ListClaimable(ctx context.Context, status types.Status, limit int) ([]types.WorkItem, error)
	ListSuggestionCandidates(ctx context.Context, limit int) ([]types.WorkItem, error)
}

// Processor runs one pipeline stage for a claimed item.
type Processor interface {
	Process(ctx context.Context, item *types.WorkItem) error
}

// Suggester generates metadata proposals for a parsed document.
type Suggester interface {
	Suggest(ctx context.Context, workItemID uuid.UUID) ([]types.Suggestion, error)
}

// Stages holds the services the pool drives. A nil entry disables that
// loop; a deployment without browser credentials simply runs no publish
// worker.
type Stages struct {
	Parser    Processor
	Proofer   Processor
	Publisher Processor
	Optimizer Suggester
}

// Config tunes the pool.
type Config struct {
	// Interval between poll ticks; zero selects 10s.
	Interval time.Duration
	// Limit caps concurrent stage invocations across all loops; zero
	// selects 4.
	Limit int
	// StageTimeout bounds one stage invocation; zero selects 5m.
	StageTimeout time.Duration
	// BatchSize caps items listed per stage per tick; zero selects 10.
	BatchSize int
}

// Pool coordinates the stage loops.
type Pool struct {
	store  Store
	ledger *lifecycle.Ledger
	stages Stages
	cfg    Config
	logger *slog.Logger

	mu              sync.Mutex
	inflight        map[uuid.UUID]struct{}
	suggestFailures map[uuid.UUID]int
}

// NewPool creates a Pool.
func NewPool(store Store, ledger *lifecycle.Ledger, stages Stages, cfg Config, logger *slog.Logger) *Pool {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 4
	}
	if cfg.StageTimeout <= 0 {
		cfg.StageTimeout = 5 * time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		store:           store,
		ledger:          ledger,
		stages:          stages,
		cfg:             cfg,
		logger:          logger.With("component", "worker"),
		inflight:        make(map[uuid.UUID]struct{}),
		suggestFailures: make(map[uuid.UUID]int),
	}
}

// Run ticks until the context is canceled. The first tick happens
// immediately.
func (p *Pool) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.Tick(ctx)
	for {
		select {
		case <-ticker.C:
			p.Tick(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tick runs one poll pass over every stage and waits for the items it
// dispatched. Stage errors are recorded on the items by the services
// themselves, so the group only limits concurrency and never cancels
// siblings.
func (p *Pool) Tick(ctx context.Context) {
	var g errgroup.Group
	g.SetLimit(p.cfg.Limit)

	p.dispatchParse(ctx, &g)
	p.dispatchProofread(ctx, &g)
	p.dispatchPublish(ctx, &g)
	p.dispatchSuggest(ctx, &g)

	_ = g.Wait()
}

func (p *Pool) dispatchParse(ctx context.Context, g *errgroup.Group) {
	if p.stages.Parser == nil {
		return
	}
	for _, item := range p.list(ctx, types.StatusPending) {
		p.spawn(ctx, g, item, p.runParse)
	}
}

func (p *Pool) dispatchProofread(ctx context.Context, g *errgroup.Group) {
	if p.stages.Proofer == nil {
		return
	}
	for _, item := range p.list(ctx, types.StatusProofreading) {
		p.spawn(ctx, g, item, p.runProofread)
	}
}

func (p *Pool) dispatchPublish(ctx context.Context, g *errgroup.Group) {
	if p.stages.Publisher == nil {
		return
	}
	for _, item := range p.list(ctx, types.StatusReadyToPublish) {
		p.spawn(ctx, g, item, p.runPublish)
	}
}

func (p *Pool) dispatchSuggest(ctx context.Context, g *errgroup.Group) {
	if p.stages.Optimizer == nil {
		return
	}
	items, err := p.store.ListSuggestionCandidates(ctx, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to list suggestion candidates", "error", err)
		return
	}
	for _, item := range items {
		if p.suggestExhausted(item.ID) {
			continue
		}
		p.spawn(ctx, g, item, p.runSuggest)
	}
}

func (p *Pool) list(ctx context.Context, status types.Status) []types.WorkItem {
	items, err := p.store.ListClaimable(ctx, status, p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("failed to list claimable items", "status", status, "error", err)
		return nil
	}
	return items
}

// spawn hands one item to a stage runner unless it is already being
// processed by another loop in this process. The invocation context
// derives from the pool's, so shutdown cancels in-flight stages.
func (p *Pool) spawn(ctx context.Context, g *errgroup.Group, item types.WorkItem, run func(context.Context, *types.WorkItem)) {
	if !p.acquire(item.ID) {
		return
	}
	g.Go(func() error {
		defer p.release(item.ID)
		runCtx, cancel := context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
		run(runCtx, &item)
		return nil
	})
}

func (p *Pool) runParse(ctx context.Context, item *types.WorkItem) {
	claimed, err := p.ledger.Transition(ctx, item, types.StatusParsing, actorWorker, "claimed for parsing")
	if err != nil {
		if errors.Is(err, lifecycle.ErrStaleStatus) {
			p.logger.Debug("lost parse claim", "work_item", item.ID)
			return
		}
		p.logger.Error("failed to claim item for parsing", "work_item", item.ID, "error", err)
		return
	}
	if err := p.stages.Parser.Process(ctx, claimed); err != nil {
		p.logger.Warn("parse stage failed", "work_item", item.ID, "error", err)
	}
}

func (p *Pool) runProofread(ctx context.Context, item *types.WorkItem) {
	if err := p.stages.Proofer.Process(ctx, item); err != nil {
		if errors.Is(err, lifecycle.ErrStaleStatus) {
			p.logger.Debug("item moved during proofreading", "work_item", item.ID)
			return
		}
		p.logger.Warn("proofread stage failed", "work_item", item.ID, "error", err)
	}
}

func (p *Pool) runPublish(ctx context.Context, item *types.WorkItem) {
	err := p.stages.Publisher.Process(ctx, item)
	switch {
	case err == nil:
	case errors.Is(err, db.ErrPublishInFlight):
		p.logger.Debug("publish already in flight", "work_item", item.ID)
	case errors.Is(err, lifecycle.ErrStaleStatus):
		p.logger.Debug("lost publish claim", "work_item", item.ID)
	default:
		p.logger.Warn("publish stage failed", "work_item", item.ID, "error", err)
	}
}

func (p *Pool) runSuggest(ctx context.Context, item *types.WorkItem) {
	if _, err := p.stages.Optimizer.Suggest(ctx, item.ID); err != nil {
		attempts := p.noteSuggestFailure(item.ID)
		if attempts >= maxSuggestAttempts {
			p.logger.Warn("giving up on suggestions",
				"work_item", item.ID,
				"attempts", attempts,
				"error", err)
		} else {
			p.logger.Warn("suggestion generation failed", "work_item", item.ID, "error", err)
		}
		return
	}
	p.clearSuggestFailures(item.ID)
}

func (p *Pool) acquire(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, busy := p.inflight[id]; busy {
		return false
	}
	p.inflight[id] = struct{}{}
	return true
}

func (p *Pool) release(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.inflight, id)
}

func (p *Pool) suggestExhausted(id uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suggestFailures[id] >= maxSuggestAttempts
}

func (p *Pool) noteSuggestFailure(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suggestFailures[id]++
	return p.suggestFailures[id]
}

func (p *Pool) clearSuggestFailures(id uuid.UUID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.suggestFailures, id)
}
