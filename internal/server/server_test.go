package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingofalbert/cms-automation-sub000/internal/db"
	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/proofreading"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore backs handler tests in memory. It implements the server,
// lifecycle and decision store surfaces so the handlers run over the
// real services.
type memStore struct {
	mu          sync.Mutex
	items       map[uuid.UUID]*types.WorkItem
	order       []uuid.UUID
	transitions []types.StatusTransition
	docs        map[uuid.UUID]*types.CanonicalDocument
	suggestions map[uuid.UUID][]types.Suggestion
	runs        map[uuid.UUID]*types.ProofreadingRun
	issues      map[uuid.UUID][]types.Issue
	decisions   []types.Decision
	tasks       []types.PublishTask
	records     map[uuid.UUID][]types.StepRecord

	listErr error
}

func newMemStore() *memStore {
	return &memStore{
		items:       make(map[uuid.UUID]*types.WorkItem),
		docs:        make(map[uuid.UUID]*types.CanonicalDocument),
		suggestions: make(map[uuid.UUID][]types.Suggestion),
		runs:        make(map[uuid.UUID]*types.ProofreadingRun),
		issues:      make(map[uuid.UUID][]types.Issue),
		records:     make(map[uuid.UUID][]types.StepRecord),
	}
}

func (m *memStore) addItem(status types.Status) *types.WorkItem {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &types.WorkItem{
		ID:          uuid.New(),
		SourceID:    fmt.Sprintf("drafts/%s.html", uuid.NewString()[:8]),
		RevisionTag: "rev-1",
		Status:      status,
		Version:     3,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	return item
}

func (m *memStore) addRun(workItemID uuid.UUID, issues ...types.Issue) *types.ProofreadingRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	run := &types.ProofreadingRun{
		ID:         uuid.New(),
		WorkItemID: workItemID,
		Number:     1,
		Trigger:    "automatic",
		IssueCount: len(issues),
		CreatedAt:  time.Now().UTC(),
	}
	if prev := m.runs[workItemID]; prev != nil {
		run.Number = prev.Number + 1
	}
	m.runs[workItemID] = run

	for i := range issues {
		issues[i].ID = uuid.New()
		issues[i].WorkItemID = workItemID
		issues[i].RunID = run.ID
	}
	m.issues[run.ID] = issues
	return run
}

func (m *memStore) addTask(workItemID uuid.UUID, status types.TaskStatus, attempt int) *types.PublishTask {
	m.mu.Lock()
	defer m.mu.Unlock()

	task := types.PublishTask{
		ID:         uuid.New(),
		WorkItemID: workItemID,
		Target:     "staging",
		Status:     status,
		Attempt:    attempt,
		StartedAt:  time.Now().UTC(),
	}
	m.tasks = append(m.tasks, task)
	return &task
}

func (m *memStore) addSteps(taskID uuid.UUID, steps ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, step := range steps {
		m.records[taskID] = append(m.records[taskID], types.StepRecord{
			ID:      uuid.New(),
			TaskID:  taskID,
			Step:    step,
			Seq:     i + 1,
			Attempt: 1,
			Status:  types.StepSucceeded,
		})
	}
}

// --- server.Store ---

func (m *memStore) GetWorkItem(_ context.Context, id uuid.UUID) (*types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

func (m *memStore) ListWorkItems(_ context.Context, filters db.WorkItemFilters) ([]types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	limit := filters.Limit
	if limit == 0 {
		limit = 50
	}

	var out []types.WorkItem
	for _, id := range m.order {
		item := m.items[id]
		if filters.Status != "" && item.Status != filters.Status {
			continue
		}
		out = append(out, *item)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) GetDocument(_ context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.docs[workItemID], nil
}

func (m *memStore) ListSuggestions(_ context.Context, workItemID uuid.UUID) ([]types.Suggestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suggestions[workItemID], nil
}

func (m *memStore) GetCurrentRun(_ context.Context, workItemID uuid.UUID) (*types.ProofreadingRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[workItemID], nil
}

func (m *memStore) ListRunIssues(_ context.Context, runID uuid.UUID) ([]types.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.issues[runID], nil
}

func (m *memStore) ListPublishTasks(_ context.Context, workItemID uuid.UUID) ([]types.PublishTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.PublishTask
	for _, task := range m.tasks {
		if task.WorkItemID == workItemID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (m *memStore) GetPublishTask(_ context.Context, id uuid.UUID) (*types.PublishTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, task := range m.tasks {
		if task.ID == id {
			cp := task
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListStepRecords(_ context.Context, taskID uuid.UUID) ([]types.StepRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[taskID], nil
}

// --- lifecycle.Store ---

func (m *memStore) ApplyTransition(_ context.Context, req lifecycle.TransitionRequest) (*types.WorkItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[req.WorkItemID]
	if !ok {
		return nil, lifecycle.ErrNotFound
	}
	if item.Status != req.From || item.Version != req.Version {
		return nil, lifecycle.ErrStaleStatus
	}

	item.Status = req.To
	item.Version++
	item.UpdatedAt = time.Now().UTC()
	if req.SetRetryCount != nil {
		item.RetryCount = *req.SetRetryCount
	}
	if req.SetFailure != nil {
		stage := req.SetFailure.Stage
		msg := req.SetFailure.Error
		item.FailedStage = &stage
		item.LastError = &msg
	}
	if req.ClearFailure {
		item.FailedStage = nil
		item.LastError = nil
	}

	m.transitions = append(m.transitions, types.StatusTransition{
		ID:         uuid.New(),
		WorkItemID: req.WorkItemID,
		FromStatus: req.From,
		ToStatus:   req.To,
		Actor:      req.Actor,
		Reason:     req.Reason,
		CreatedAt:  time.Now().UTC(),
	})

	cp := *item
	return &cp, nil
}

func (m *memStore) ListTransitions(_ context.Context, workItemID uuid.UUID) ([]types.StatusTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.StatusTransition
	for _, tr := range m.transitions {
		if tr.WorkItemID == workItemID {
			out = append(out, tr)
		}
	}
	return out, nil
}

// --- proofreading.DecisionStore ---

func (m *memStore) GetIssue(_ context.Context, issueID uuid.UUID) (*types.Issue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, issues := range m.issues {
		for _, issue := range issues {
			if issue.ID == issueID {
				cp := issue
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (m *memStore) RecordDecision(_ context.Context, input *types.Decision) (*types.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for i := range m.decisions {
		if m.decisions[i].IssueID == input.IssueID && m.decisions[i].IsCurrent {
			m.decisions[i].IsCurrent = false
			m.decisions[i].SupersededAt = &now
		}
	}

	decision := *input
	decision.ID = uuid.New()
	decision.IsCurrent = true
	decision.CreatedAt = now
	m.decisions = append(m.decisions, decision)

	cp := decision
	return &cp, nil
}

func (m *memStore) ListCurrentDecisions(_ context.Context, issueIDs []uuid.UUID) ([]types.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[uuid.UUID]bool, len(issueIDs))
	for _, id := range issueIDs {
		wanted[id] = true
	}

	var out []types.Decision
	for _, d := range m.decisions {
		if d.IsCurrent && wanted[d.IssueID] {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) ListDecisionHistory(_ context.Context, workItemID uuid.UUID) ([]types.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []types.Decision
	for _, d := range m.decisions {
		if d.WorkItemID == workItemID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memStore) CountUndecidedIssues(_ context.Context, runID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	decided := make(map[uuid.UUID]bool)
	for _, d := range m.decisions {
		if d.IsCurrent {
			decided[d.IssueID] = true
		}
	}

	undecided := 0
	for _, issue := range m.issues[runID] {
		if !decided[issue.ID] {
			undecided++
		}
	}
	return undecided, nil
}

type fakeScanner struct {
	mu        sync.Mutex
	found     int
	scanCalls int
}

func (f *fakeScanner) Scan(context.Context) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scanCalls++
	return f.found
}

func newTestServer(t *testing.T, opts ...func(*Config)) (*Server, *memStore) {
	t.Helper()

	store := newMemStore()
	cfg := Config{
		Store:     store,
		Ledger:    lifecycle.NewLedger(store, 3, quietLogger()),
		Decisions: proofreading.NewDecisionLedger(store, quietLogger()),
		Logger:    quietLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	s, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { s.rateLimiter.Stop() })
	return s, store
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

func TestNew_RequiresServices(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store")

	store := newMemStore()
	_, err = New(Config{Store: store})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status ledger")

	_, err = New(Config{Store: store, Ledger: lifecycle.NewLedger(store, 3, quietLogger())})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decision ledger")
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	decodeBody(t, w, &resp)
	assert.Equal(t, "ok", resp["status"])
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/workitems", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestUnknownRouteIs404(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/unknown", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRateLimitHeadersOnReads(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/workitems", nil)
	w := httptest.NewRecorder()
	s.httpServer.Handler.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Remaining"))
}
