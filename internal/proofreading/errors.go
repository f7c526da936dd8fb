package proofreading

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrIssueNotFound is returned when a decision references an issue that
// does not exist.
var ErrIssueNotFound = errors.New("issue not found")

// InvalidDecisionError reports a decision request that fails validation.
type InvalidDecisionError struct {
	Reason string
}

func (e *InvalidDecisionError) Error() string {
	return fmt.Sprintf("invalid decision: %s", e.Reason)
}

// SpanConflictError reports two applied decisions whose issue spans
// overlap, which would make the resolved body depend on application
// order.
type SpanConflictError struct {
	FirstIssueID  uuid.UUID
	SecondIssueID uuid.UUID
}

func (e *SpanConflictError) Error() string {
	return fmt.Sprintf("issues %s and %s have overlapping spans", e.FirstIssueID, e.SecondIssueID)
}
