// Package types provides type definitions for structured data used throughout the cms-automation system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Publish step name constants for the standard script
const (
	StepOpenSession         = "open_session"
	StepCreateEntry         = "create_entry"
	StepFillTitle           = "fill_title"
	StepFillBody            = "fill_body"
	StepUploadMedia         = "upload_media"
	StepFillMetaDescription = "fill_meta_description"
	StepFillKeywords        = "fill_keywords"
	StepSetTaxonomy         = "set_taxonomy"
	StepSubmit              = "submit"
	StepVerify              = "verify"
)

// FailureClass categorizes a step failure for retry handling
type FailureClass string

const (
	// FailureRecoverable covers timeouts, missing elements, and transient
	// network errors; the step is retried with backoff
	FailureRecoverable FailureClass = "recoverable"
	// FailureFatal covers rejected credentials, permission errors, and
	// target-side validation errors; the task aborts immediately
	FailureFatal FailureClass = "fatal"
)

// TaskStatus is the lifecycle state of a publish task
type TaskStatus string

const (
	// TaskRunning means the orchestrator is executing the script
	TaskRunning TaskStatus = "running"
	// TaskCompleted means every step completed and the document is live
	TaskCompleted TaskStatus = "completed"
	// TaskFailed means a step exhausted retries or failed fatally
	TaskFailed TaskStatus = "failed"
	// TaskCanceled means the context was canceled mid-script
	TaskCanceled TaskStatus = "canceled"
)

// PublishTask is one attempt to push a work item onto the publish target.
// At most one task per work item may be running; the store enforces the
// single-flight rule with a conditional insert.
type PublishTask struct {
	ID           uuid.UUID    `json:"id"`
	WorkItemID   uuid.UUID    `json:"work_item_id"`
	Target       string       `json:"target"`
	Status       TaskStatus   `json:"status"`
	Attempt      int          `json:"attempt"`
	FailureClass FailureClass `json:"failure_class,omitempty"`
	FailedStep   string       `json:"failed_step,omitempty"`
	Error        string       `json:"error,omitempty"`
	PublishedURL string       `json:"published_url,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
}

// StepStatus is the outcome of one step attempt
type StepStatus string

const (
	// StepSucceeded means the attempt completed
	StepSucceeded StepStatus = "succeeded"
	// StepFailed means the attempt errored; FailureClass says whether it retried
	StepFailed StepStatus = "failed"
)

// StepRecord is the audit row for one attempt of one script step.
// Every attempt writes a record, including attempts that later retried,
// so the trail reconstructs the whole session.
type StepRecord struct {
	ID             uuid.UUID    `json:"id"`
	TaskID         uuid.UUID    `json:"task_id"`
	Step           string       `json:"step"`
	Seq            int          `json:"seq"`
	Attempt        int          `json:"attempt"`
	Status         StepStatus   `json:"status"`
	FailureClass   FailureClass `json:"failure_class,omitempty"`
	Error          string       `json:"error,omitempty"`
	ScreenshotPath string       `json:"screenshot_path,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	CompletedAt    time.Time    `json:"completed_at"`
	DurationMS     int64        `json:"duration_ms"`
}
