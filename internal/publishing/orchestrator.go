package publishing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const actorPublisher = "publisher"

// Store is the persistence surface the orchestrator needs.
type Store interface {
	GetDocument(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error)
	CreatePublishTask(ctx context.Context, workItemID uuid.UUID, target string) (*types.PublishTask, error)
	FinishPublishTask(ctx context.Context, taskID uuid.UUID, status types.TaskStatus, failureClass types.FailureClass, failedStep, errMsg, publishedURL string) error
	InsertStepRecord(ctx context.Context, rec *types.StepRecord) error
	SetPublishedURL(ctx context.Context, workItemID uuid.UUID, publishedURL string) error
}

// Resolver builds the publish body from a document and its decisions.
type Resolver interface {
	ResolveDocument(ctx context.Context, doc *types.CanonicalDocument) (string, error)
}

// Config tunes the orchestrator.
type Config struct {
	// Target names the publish destination on task rows.
	Target string
	// Taxonomy holds the sections the entry files under; empty skips the step.
	Taxonomy []string
	// ScreenshotDir is where step captures are written; empty disables them.
	ScreenshotDir string
	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration
	// StepAttempts caps attempts per step, recoverable failures only.
	StepAttempts int
}

// Orchestrator drives ready work items through the publish script.
type Orchestrator struct {
	store    Store
	ledger   *lifecycle.Ledger
	agent    Agent
	resolver Resolver
	cfg      Config
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. Zero config fields select the
// defaults: target "cms", 2s backoff base, 3 attempts per step.
func NewOrchestrator(store Store, ledger *lifecycle.Ledger, agent Agent, resolver Resolver, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Target == "" {
		cfg.Target = "cms"
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 2 * time.Second
	}
	if cfg.StepAttempts <= 0 {
		cfg.StepAttempts = 3
	}
	return &Orchestrator{
		store:    store,
		ledger:   ledger,
		agent:    agent,
		resolver: resolver,
		cfg:      cfg,
		sleep:    sleepCtx,
		logger:   logger.With("component", "publisher"),
	}
}

// stepFailure carries the failing step and its classification up from
// the script loop.
type stepFailure struct {
	step  string
	class types.FailureClass
	cause error
}

func (e *stepFailure) Error() string {
	return fmt.Sprintf("step %s failed (%s): %v", e.step, e.class, e.cause)
}

func (e *stepFailure) Unwrap() error { return e.cause }

// Process publishes one ready work item. The publish task is created
// before the status claim so the single-flight rule holds across worker
// processes; a second concurrent attempt gets db.ErrPublishInFlight from
// the store and backs off. Cancellation stops the script after the
// current step; partially created remote content is left as is.
func (o *Orchestrator) Process(ctx context.Context, item *types.WorkItem) error {
	task, err := o.store.CreatePublishTask(ctx, item.ID, o.cfg.Target)
	if err != nil {
		return err
	}

	claimed, err := o.ledger.Transition(ctx, item, types.StatusPublishing, actorPublisher,
		fmt.Sprintf("publish attempt %d", task.Attempt))
	if err != nil {
		finishErr := o.store.FinishPublishTask(context.WithoutCancel(ctx), task.ID,
			types.TaskFailed, "", "", "status claim lost: "+err.Error(), "")
		if finishErr != nil {
			o.logger.Error("failed to finish orphaned publish task", "task", task.ID, "error", finishErr)
		}
		return err
	}
	item = claimed

	o.logger.Info("publish task started",
		"work_item", item.ID,
		"task", task.ID,
		"attempt", task.Attempt,
		"target", o.cfg.Target)

	doc, err := o.store.GetDocument(ctx, item.ID)
	if err != nil {
		return o.abort(ctx, task, item, "", "", fmt.Errorf("failed to load canonical document: %w", err))
	}
	if doc == nil {
		return o.abort(ctx, task, item, types.FailureFatal, "", errors.New("work item has no canonical document"))
	}

	body, err := o.resolver.ResolveDocument(ctx, doc)
	if err != nil {
		return o.abort(ctx, task, item, types.FailureFatal, "", fmt.Errorf("failed to resolve publish body: %w", err))
	}

	publishedURL, err := o.runScript(ctx, task, doc, body)
	if err != nil {
		var sf *stepFailure
		failedStep := ""
		class := types.FailureClass("")
		if errors.As(err, &sf) {
			failedStep, class = sf.step, sf.class
		}
		return o.abort(ctx, task, item, class, failedStep, err)
	}

	if err := o.store.FinishPublishTask(ctx, task.ID, types.TaskCompleted, "", "", "", publishedURL); err != nil {
		return fmt.Errorf("failed to finish publish task: %w", err)
	}
	if err := o.store.SetPublishedURL(ctx, item.ID, publishedURL); err != nil {
		return fmt.Errorf("failed to record published URL: %w", err)
	}
	if _, err := o.ledger.Transition(ctx, item, types.StatusPublished, actorPublisher,
		fmt.Sprintf("published at %s", publishedURL)); err != nil {
		return fmt.Errorf("failed to advance published item: %w", err)
	}

	o.logger.Info("work item published",
		"work_item", item.ID,
		"task", task.ID,
		"url", publishedURL)
	return nil
}

// runScript executes the publish steps in order and returns the external
// URL captured by the verify step.
func (o *Orchestrator) runScript(ctx context.Context, task *types.PublishTask, doc *types.CanonicalDocument, body string) (string, error) {
	script := BuildScript(doc, body, o.cfg.Taxonomy)

	var session Session
	defer func() {
		if session == nil {
			return
		}
		if err := session.Close(); err != nil {
			o.logger.Warn("failed to close automation session", "task", task.ID, "error", err)
		}
	}()

	publishedURL := ""
	for i, instr := range script {
		result, err := o.runStep(ctx, task, i+1, instr, &session)
		if err != nil {
			return "", err
		}
		if instr.Step == types.StepVerify {
			publishedURL = result.Extracted
		}
	}

	if publishedURL == "" {
		return "", &stepFailure{
			step:  types.StepVerify,
			class: types.FailureFatal,
			cause: errors.New("verify step returned no published URL"),
		}
	}
	return publishedURL, nil
}

// runStep executes one script step, retrying recoverable failures with
// exponential backoff. Every attempt writes a StepRecord, failed ones
// included, so the audit trail reconstructs the whole session.
func (o *Orchestrator) runStep(ctx context.Context, task *types.PublishTask, seq int, instr Instruction, session *Session) (*StepResult, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.StepAttempts; attempt++ {
		started := time.Now().UTC()
		result, err := o.attemptStep(ctx, instr, session)
		completed := time.Now().UTC()

		rec := &types.StepRecord{
			TaskID:      task.ID,
			Step:        instr.Step,
			Seq:         seq,
			Attempt:     attempt,
			Status:      types.StepSucceeded,
			StartedAt:   started,
			CompletedAt: completed,
			DurationMS:  completed.Sub(started).Milliseconds(),
		}
		if result != nil && len(result.Screenshot) > 0 {
			rec.ScreenshotPath = o.saveScreenshot(task.ID, seq, attempt, instr.Step, result.Screenshot)
		}
		if err != nil {
			rec.Status = types.StepFailed
			rec.FailureClass = Classify(err)
			rec.Error = err.Error()
		}
		if insErr := o.store.InsertStepRecord(context.WithoutCancel(ctx), rec); insErr != nil {
			return nil, fmt.Errorf("failed to record step attempt: %w", insErr)
		}

		if err == nil {
			return result, nil
		}
		lastErr = err

		if rec.FailureClass == types.FailureFatal || ctx.Err() != nil {
			return nil, &stepFailure{step: instr.Step, class: rec.FailureClass, cause: err}
		}
		if attempt < o.cfg.StepAttempts {
			delay := o.cfg.BackoffBase << (attempt - 1)
			o.logger.Debug("retrying step",
				"task", task.ID,
				"step", instr.Step,
				"attempt", attempt,
				"delay", delay)
			if sleepErr := o.sleep(ctx, delay); sleepErr != nil {
				return nil, &stepFailure{step: instr.Step, class: types.FailureRecoverable, cause: sleepErr}
			}
		}
	}
	return nil, &stepFailure{step: instr.Step, class: types.FailureRecoverable, cause: lastErr}
}

// attemptStep opens the session lazily so a browser spawn failure
// retries like any other open_session failure.
func (o *Orchestrator) attemptStep(ctx context.Context, instr Instruction, session *Session) (*StepResult, error) {
	if *session == nil {
		s, err := o.agent.OpenSession(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to open automation session: %w", err)
		}
		*session = s
	}
	return (*session).RunStep(ctx, instr)
}

// saveScreenshot writes a capture under the screenshots directory and
// returns its path. A capture that cannot be written is logged and
// dropped; the step record still notes the attempt.
func (o *Orchestrator) saveScreenshot(taskID uuid.UUID, seq, attempt int, step string, shot []byte) string {
	if o.cfg.ScreenshotDir == "" {
		return ""
	}
	dir := filepath.Join(o.cfg.ScreenshotDir, taskID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		o.logger.Warn("failed to create screenshot directory", "dir", dir, "error", err)
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d_%s_attempt%d.png", seq, step, attempt))
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		o.logger.Warn("failed to save screenshot", "path", path, "error", err)
		return ""
	}
	return path
}

// abort finishes the task as failed, or canceled when the context is
// gone, then marks the item failed in the publish stage. Bookkeeping
// runs on a detached context so the audit rows survive cancellation.
func (o *Orchestrator) abort(ctx context.Context, task *types.PublishTask, item *types.WorkItem, class types.FailureClass, failedStep string, cause error) error {
	finishCtx := context.WithoutCancel(ctx)
	status := types.TaskFailed
	if ctx.Err() != nil {
		status = types.TaskCanceled
	}
	if err := o.store.FinishPublishTask(finishCtx, task.ID, status, class, failedStep, cause.Error(), ""); err != nil {
		o.logger.Error("failed to finish publish task", "task", task.ID, "error", err)
	}
	if _, err := o.ledger.MarkFailed(finishCtx, item, types.StagePublish, cause, actorPublisher); err != nil {
		return fmt.Errorf("failed to record publish failure: %w (cause: %v)", err, cause)
	}
	return cause
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
