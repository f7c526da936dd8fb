// Package types provides type definitions for structured data used throughout the cms-automation system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// IssueSeverity grades how strongly an issue should block publication
type IssueSeverity string

const (
	// SeverityInfo is advisory only
	SeverityInfo IssueSeverity = "info"
	// SeverityWarning should be reviewed but may be rejected
	SeverityWarning IssueSeverity = "warning"
	// SeverityError indicates content that is almost certainly wrong
	SeverityError IssueSeverity = "error"
)

// IssueCategory groups issues by the kind of problem detected
type IssueCategory string

const (
	// CategorySpelling covers misspellings and typos
	CategorySpelling IssueCategory = "spelling"
	// CategoryGrammar covers grammatical errors
	CategoryGrammar IssueCategory = "grammar"
	// CategoryStyle covers style and tone problems
	CategoryStyle IssueCategory = "style"
	// CategoryConsistency covers terminology and formatting drift
	CategoryConsistency IssueCategory = "consistency"
	// CategoryMetadata covers meta description and keyword problems
	CategoryMetadata IssueCategory = "metadata"
	// CategoryMarkup covers structural problems in the body markup
	CategoryMarkup IssueCategory = "markup"
)

// Span locates an issue inside the document body by byte offsets
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ProofreadingRun groups the issues produced by one detection pass.
// A newer run supersedes all issues of earlier runs for the same item.
type ProofreadingRun struct {
	ID         uuid.UUID `json:"id"`
	WorkItemID uuid.UUID `json:"work_item_id"`
	Number     int       `json:"number"`
	Trigger    string    `json:"trigger"`
	IssueCount int       `json:"issue_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Issue is one detected problem. Issues are immutable once written;
// re-detection creates a new run with new issues instead of mutating.
type Issue struct {
	ID          uuid.UUID     `json:"id"`
	WorkItemID  uuid.UUID     `json:"work_item_id"`
	RunID       uuid.UUID     `json:"run_id"`
	Detector    string        `json:"detector"`
	Category    IssueCategory `json:"category"`
	Severity    IssueSeverity `json:"severity"`
	Message     string        `json:"message"`
	Span        *Span         `json:"span,omitempty"`
	Excerpt     string        `json:"excerpt,omitempty"`
	Replacement string        `json:"replacement,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// DecisionKind is the operator's verdict on an issue
type DecisionKind string

const (
	// DecisionAccepted applies the issue's suggested replacement
	DecisionAccepted DecisionKind = "accepted"
	// DecisionRejected leaves the original text in place
	DecisionRejected DecisionKind = "rejected"
	// DecisionModified applies operator-supplied replacement text
	DecisionModified DecisionKind = "modified"
)

// IsValid reports whether k is a known decision kind
func (k DecisionKind) IsValid() bool {
	switch k {
	case DecisionAccepted, DecisionRejected, DecisionModified:
		return true
	}
	return false
}

// Decision records an operator verdict on one issue. The ledger is
// append-only: re-deciding archives the prior row and inserts a new
// current one, so the full decision history stays queryable.
type Decision struct {
	ID              uuid.UUID    `json:"id"`
	WorkItemID      uuid.UUID    `json:"work_item_id"`
	IssueID         uuid.UUID    `json:"issue_id"`
	Kind            DecisionKind `json:"kind"`
	ModifiedContent string       `json:"modified_content,omitempty"`
	DecidedBy       string       `json:"decided_by"`
	Note            string       `json:"note,omitempty"`
	IsCurrent       bool         `json:"is_current"`
	CreatedAt       time.Time    `json:"created_at"`
	SupersededAt    *time.Time   `json:"superseded_at,omitempty"`
}
