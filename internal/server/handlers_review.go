package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// handleGetDocument returns the parsed document together with the
// optimization suggestions attached to it.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	doc, err := s.store.GetDocument(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if doc == nil {
		s.errorResponse(w, http.StatusNotFound, "work item has no parsed document")
		return
	}

	suggestions, err := s.store.ListSuggestions(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"document":    doc,
		"suggestions": suggestions,
	})
}

// handleListIssues returns the latest proofreading run and its issues.
// An item that has not been proofread yet reports an empty list.
func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	run, err := s.store.GetCurrentRun(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	issues := []types.Issue{}
	if run != nil {
		issues, err = s.store.ListRunIssues(r.Context(), run.ID)
		if err != nil {
			s.serviceError(w, err)
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"run":    run,
		"issues": issues,
		"count":  len(issues),
	})
}

// handleListDecisions returns the current decision per issue plus how
// many earlier verdicts they superseded.
func (s *Server) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	current, err := s.decisions.GetDecisions(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	history, err := s.decisions.History(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	allDecided, err := s.decisions.AllIssuesDecided(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	superseded := len(history) - len(current)
	if superseded < 0 {
		superseded = 0
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"decisions":   current,
		"superseded":  superseded,
		"all_decided": allDecided,
	})
}

// decisionRequest is the body for recording one reviewer verdict.
type decisionRequest struct {
	IssueID         uuid.UUID          `json:"issue_id"`
	Kind            types.DecisionKind `json:"kind"`
	ModifiedContent string             `json:"modified_content"`
	DecidedBy       string             `json:"decided_by"`
	Note            string             `json:"note"`
}

// handleRecordDecision records a verdict on one issue.
func (s *Server) handleRecordDecision(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IssueID == uuid.Nil {
		s.errorResponse(w, http.StatusBadRequest, "issue_id is required")
		return
	}

	decision, err := s.decisions.Record(r.Context(), proofreading.DecisionRequest{
		WorkItemID:      item.ID,
		IssueID:         req.IssueID,
		Kind:            req.Kind,
		ModifiedContent: req.ModifiedContent,
		DecidedBy:       req.DecidedBy,
		Note:            req.Note,
	})
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, decision)
}

// handleReanalyze sends a reviewed item back through issue detection.
func (s *Server) handleReanalyze(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}
	req, err := decodeAction(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	updated, err := s.ledger.Transition(r.Context(), item, types.StatusProofreading, req.Actor, "reanalysis requested")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}

// handleRequestPublish queues the item for publishing once every issue
// of the current run has a decision.
func (s *Server) handleRequestPublish(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}
	req, err := decodeAction(r)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	allDecided, err := s.decisions.AllIssuesDecided(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if !allDecided {
		s.errorResponse(w, http.StatusConflict, "cannot request publish: undecided issues remain")
		return
	}

	updated, err := s.ledger.Transition(r.Context(), item, types.StatusReadyToPublish, req.Actor, "all issues decided")
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, updated)
}
