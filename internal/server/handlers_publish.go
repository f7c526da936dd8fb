package server

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// publishAttempt is one publish task with its step-level audit trail.
type publishAttempt struct {
	types.PublishTask
	Steps []types.StepRecord `json:"steps"`
}

// handleListPublishTasks returns every publish attempt for the item in
// attempt order, each with its step records.
func (s *Server) handleListPublishTasks(w http.ResponseWriter, r *http.Request) {
	item := s.loadWorkItem(w, r)
	if item == nil {
		return
	}

	tasks, err := s.store.ListPublishTasks(r.Context(), item.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	attempts := make([]publishAttempt, 0, len(tasks))
	for _, task := range tasks {
		steps, err := s.store.ListStepRecords(r.Context(), task.ID)
		if err != nil {
			s.serviceError(w, err)
			return
		}
		attempts = append(attempts, publishAttempt{PublishTask: task, Steps: steps})
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"work_item_id": item.ID,
		"tasks":        attempts,
		"count":        len(attempts),
	})
}

// handleListTaskSteps returns the full step audit trail of one publish
// task.
func (s *Server) handleListTaskSteps(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid publish task id")
		return
	}

	task, err := s.store.GetPublishTask(r.Context(), id)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	if task == nil {
		s.errorResponse(w, http.StatusNotFound, "publish task not found")
		return
	}

	steps, err := s.store.ListStepRecords(r.Context(), task.ID)
	if err != nil {
		s.serviceError(w, err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]any{
		"task":  task,
		"steps": steps,
	})
}
