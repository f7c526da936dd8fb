package server

import (
	"errors"
	"net/http"

	"github.com/kingofalbert/cms-automation-sub000/internal/ingestion"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
)

// HTTPStatus maps a service error onto a status code. Services wrap
// their errors, so the mapping unwraps rather than type-switching.
func HTTPStatus(err error) int {
	var (
		invalidTransition *lifecycle.InvalidTransitionError
		retryCeiling      *lifecycle.RetryCeilingError
		invalidDecision   *proofreading.InvalidDecisionError
		invalidDocument   *ingestion.InvalidDocumentError
	)

	switch {
	case errors.Is(err, lifecycle.ErrNotFound),
		errors.Is(err, proofreading.ErrIssueNotFound):
		return http.StatusNotFound
	case errors.As(err, &invalidTransition),
		errors.As(err, &retryCeiling),
		errors.Is(err, lifecycle.ErrStaleStatus):
		return http.StatusConflict
	case errors.As(err, &invalidDecision),
		errors.As(err, &invalidDocument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
