package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// actionRequest is the shared body for transition commands. The body is
// optional; a bare POST records the default operator identity.
type actionRequest struct {
	Actor string `json:"actor"`
}

func decodeAction(r *http.Request) (actionRequest, error) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return req, err
	}
	if req.Actor == "" {
		req.Actor = "operator"
	}
	return req, nil
}

// parseQueryInt parses an integer query parameter with default and max values.
func parseQueryInt(r *http.Request, key string, defaultValue, maxValue int) int {
	valStr := r.URL.Query().Get(key)
	if valStr == "" {
		return defaultValue
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val < 0 {
		return defaultValue
	}
	if maxValue > 0 && val > maxValue {
		return maxValue
	}
	return val
}

// loadWorkItem resolves the {id} path value to a work item, writing the
// error response itself when the item cannot be served.
func (s *Server) loadWorkItem(w http.ResponseWriter, r *http.Request) *types.WorkItem {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid work item id")
		return nil
	}

	item, err := s.store.GetWorkItem(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return nil
	}
	if item == nil {
		s.errorResponse(w, http.StatusNotFound, "work item not found")
		return nil
	}
	return item
}

// handleListWorkItems lists work items, optionally filtered by status.
func (s *Server) handleListWorkItems(w http.ResponseWriter, r *http.Request) {
	filters := db.WorkItemFilters{
		Limit: parseQueryInt(r, "limit", 50, 200),
	}
	if statusStr := r.URL.Query().Get("status"); statusStr != "" {
		status := types.Status(statusStr)
		if !status.IsValid() {
			s.errorResponse(w, http.StatusBadRequest, "unknown status "+strconv.Quote(statusStr))
			return
		}
		filters.Status = status
	}

	items, err := s.store.ListWorkItems(r.Context(), filters)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"work_items": items,
		"count":      len(items),
	})
}

// handleGetWorkItem returns one work item with its status, retry count
// and last failure.
func (s *Server) handleGetWorkItem(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}
	s.jsonResponse(w, http.StatusOK, item)
}

// handleWorkItemHistory returns the item's status transitions, oldest
// first.
func (s *Server) handleWorkItemHistory(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	transitions, err := s.ledger.History(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"work_item_id": item.ID,
		"transitions":  transitions,
		"count":        len(transitions),
	})
}

// handleConfirmParsing moves a reviewed parse into proofreading.
func (s *Server) handleConfirmParsing(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}
	req, err := decodeAction(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.ledger.Transition(r.Context(), item, types.StatusProofreading, req.Actor, "parse confirmed")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleRetry re-queues a failed item at the stage that failed.
func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}
	req, err := decodeAction(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.ledger.RetryFailed(r.Context(), item, req.Actor)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleScan triggers one immediate source poll.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "source polling is not configured")
		return
	}

	discovered := s.scanner.Scan(r.Context())
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"discovered": discovered,
	})
}
