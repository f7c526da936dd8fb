package lifecycle

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// ErrStaleStatus means the conditional update matched no row: another
// actor changed the item's status or version first. Callers re-read and
// re-evaluate instead of retrying blindly.
var ErrStaleStatus = errors.New("work item status changed concurrently")

// ErrNotFound means the work item does not exist.
var ErrNotFound = errors.New("work item not found")

// InvalidTransitionError reports an attempted transition the state
// machine does not allow. It names both the current and the requested
// status so operators can see what went wrong.
type InvalidTransitionError struct {
	From types.Status
	To   types.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// RetryCeilingError reports a retry request beyond the configured ceiling.
type RetryCeilingError struct {
	WorkItemID uuid.UUID
	Attempts   int
	Ceiling    int
}

func (e *RetryCeilingError) Error() string {
	return fmt.Sprintf("work item %s exceeded retry ceiling: %d of %d attempts used", e.WorkItemID, e.Attempts, e.Ceiling)
}
