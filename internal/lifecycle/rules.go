// Package lifecycle implements the status ledger: the pipeline state
// machine, optimistic transitions, and the append-only transition history.
package lifecycle

import "github.com/kingofalbert/cms-automation-sub000/internal/types"

// Allowed reports whether from -> to is a legal pipeline transition.
// Revision resets are handled separately and do not go through this table.
func Allowed(from, to types.Status) bool {
	switch from {
	case types.StatusPending:
		return to == types.StatusParsing
	case types.StatusParsing:
		return to == types.StatusParsingReview || to == types.StatusFailed
	case types.StatusParsingReview:
		return to == types.StatusProofreading
	case types.StatusProofreading:
		return to == types.StatusProofreadingReview || to == types.StatusFailed
	case types.StatusProofreadingReview:
		return to == types.StatusProofreading || to == types.StatusReadyToPublish
	case types.StatusReadyToPublish:
		return to == types.StatusPublishing
	case types.StatusPublishing:
		return to == types.StatusPublished || to == types.StatusFailed
	case types.StatusFailed:
		return to == types.StatusPending || to == types.StatusProofreading || to == types.StatusReadyToPublish
	default:
		return false
	}
}

// FailureStage maps a status to the stage that fails from it, if any.
func FailureStage(from types.Status) (types.Stage, bool) {
	switch from {
	case types.StatusParsing:
		return types.StageParse, true
	case types.StatusProofreading:
		return types.StageProofread, true
	case types.StatusPublishing:
		return types.StagePublish, true
	default:
		return "", false
	}
}
