// Package types provides type definitions for structured data used throughout the cms-automation system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the pipeline state of a work item
type Status string

const (
	// StatusPending means the item is queued for structural parsing
	StatusPending Status = "pending"
	// StatusParsing means the parser adapter is running
	StatusParsing Status = "parsing"
	// StatusParsingReview means parsed output awaits operator confirmation
	StatusParsingReview Status = "parsing_review"
	// StatusProofreading means issue detection is running
	StatusProofreading Status = "proofreading"
	// StatusProofreadingReview means detected issues await operator decisions
	StatusProofreadingReview Status = "proofreading_review"
	// StatusReadyToPublish means every issue is decided and the item can be queued for publishing
	StatusReadyToPublish Status = "ready_to_publish"
	// StatusPublishing means a publish task holds the single-flight lock
	StatusPublishing Status = "publishing"
	// StatusPublished is terminal: the item is live on the target
	StatusPublished Status = "published"
	// StatusFailed means a stage failed and the item needs operator attention
	StatusFailed Status = "failed"
)

// AllStatuses lists every valid pipeline status
var AllStatuses = []Status{
	StatusPending,
	StatusParsing,
	StatusParsingReview,
	StatusProofreading,
	StatusProofreadingReview,
	StatusReadyToPublish,
	StatusPublishing,
	StatusPublished,
	StatusFailed,
}

// IsValid reports whether s is a known pipeline status
func (s Status) IsValid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status ends the pipeline for the current revision
func (s Status) IsTerminal() bool {
	return s == StatusPublished
}

// Stage identifies the pipeline stage a failure originated from
type Stage string

const (
	// StageParse covers structural parsing
	StageParse Stage = "parse"
	// StageProofread covers issue detection
	StageProofread Stage = "proofread"
	// StageOptimize covers suggestion generation
	StageOptimize Stage = "optimize"
	// StagePublish covers publish orchestration
	StagePublish Stage = "publish"
)

// QueueStatus returns the status a retried item re-enters for this stage
func (s Stage) QueueStatus() Status {
	switch s {
	case StageParse:
		return StatusPending
	case StageProofread:
		return StatusProofreading
	case StagePublish:
		return StatusReadyToPublish
	default:
		return StatusPending
	}
}

// WorkItem is the unit tracked through the pipeline, one per source document
type WorkItem struct {
	ID          uuid.UUID `json:"id"`
	SourceID    string    `json:"source_id"`
	RevisionTag string    `json:"revision_tag"`
	Status      Status    `json:"status"`
	Version     int       `json:"version"`
	RetryCount  int       `json:"retry_count"`
	FailedStage *Stage    `json:"failed_stage,omitempty"`
	LastError   *string   `json:"last_error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// StatusTransition is one append-only history row for a work item
type StatusTransition struct {
	ID         uuid.UUID `json:"id"`
	WorkItemID uuid.UUID `json:"work_item_id"`
	FromStatus Status    `json:"from_status"`
	ToStatus   Status    `json:"to_status"`
	Actor      string    `json:"actor"`
	Reason     string    `json:"reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
