// Package publishing drives ready work items through the publish script
// against a browser automation agent. Every step attempt is recorded
// with a screenshot reference, so a publish session is reconstructible
// from the audit trail alone.
package publishing

import (
	"context"
	"errors"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Instruction is one semantic step for the automation agent. Step names
// the operation; Value and Items carry the content it needs.
type Instruction struct {
	Step  string
	Value string
	Items []string
}

// StepResult is what the agent hands back after executing a step. The
// screenshot is captured after the step regardless of outcome, and
// Extracted holds step output such as the published URL from verify.
type StepResult struct {
	Screenshot []byte
	Extracted  string
}

// Session is one authenticated automation session against the publish
// target. Closing it abandons any partially created remote state.
type Session interface {
	RunStep(ctx context.Context, instr Instruction) (*StepResult, error)
	Close() error
}

// Agent opens automation sessions.
type Agent interface {
	OpenSession(ctx context.Context) (Session, error)
}

// FatalStepError marks a step failure that retrying cannot fix, such as
// rejected credentials, missing permissions, or a validation error
// raised by the target system.
type FatalStepError struct {
	Message string
}

func (e *FatalStepError) Error() string { return e.Message }

// Classify buckets a step error for retry handling. Timeouts, elements
// that have not rendered yet, and transient network failures all look
// alike from outside the browser, so everything is recoverable unless
// the agent explicitly reported it fatal.
func Classify(err error) types.FailureClass {
	var fatal *FatalStepError
	if errors.As(err, &fatal) {
		return types.FailureFatal
	}
	return types.FailureRecoverable
}
