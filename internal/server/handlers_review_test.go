package server

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

func spellingIssue(excerpt string) types.Issue {
	return types.Issue{
		Detector:    "text",
		Category:    types.CategorySpelling,
		Severity:    types.SeverityWarning,
		Message:     "possible misspelling",
		Excerpt:     excerpt,
		Replacement: excerpt + "x",
	}
}

func postJSON(s *Server, handler http.HandlerFunc, target, id, body string) *httptest.ResponseRecorder {
	var buf *bytes.Buffer
	if body == "" {
		buf = bytes.NewBuffer(nil)
	} else {
		buf = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(http.MethodPost, target, buf)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestHandleGetDocument(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusParsingReview)
	store.docs[item.ID] = &types.CanonicalDocument{
		ID:         uuid.New(),
		WorkItemID: item.ID,
		Title:      "Launch Notes",
		Body:       "Everything shipped.",
		Parser:     "goquery",
		Confidence: 0.9,
	}
	store.suggestions[item.ID] = []types.Suggestion{
		{ID: uuid.New(), WorkItemID: item.ID, Field: types.SuggestionTitleAlternative, Value: "Launch Notes, Annotated"},
	}

	req := httptest.NewRequest(http.MethodGet, "/workitems/"+item.ID.String()+"/document", nil)
	req.SetPathValue("id", item.ID.String())
	w := httptest.NewRecorder()
	s.handleGetDocument(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Document    types.CanonicalDocument `json:"document"`
		Suggestions []types.Suggestion      `json:"suggestions"`
	}
	decodeBody(t, w, &resp)
	assert.Equal(t, "Launch Notes", resp.Document.Title)
	require.Len(t, resp.Suggestions, 1)
	assert.Equal(t, "Launch Notes, Annotated", resp.Suggestions[0].Value)
}

func TestHandleGetDocument_NotParsedYet(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusPending)

	req := httptest.NewRequest(http.MethodGet, "/workitems/"+item.ID.String()+"/document", nil)
	req.SetPathValue("id", item.ID.String())
	w := httptest.NewRecorder()
	s.handleGetDocument(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleListIssues(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(item.ID, spellingIssue("teh"), spellingIssue("recieve"))

	req := httptest.NewRequest(http.MethodGet, "/workitems/"+item.ID.String()+"/issues", nil)
	req.SetPathValue("id", item.ID.String())
	w := httptest.NewRecorder()
	s.handleListIssues(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Run    *types.ProofreadingRun `json:"run"`
		Issues []types.Issue          `json:"issues"`
		Count  int                    `json:"count"`
	}
	decodeBody(t, w, &resp)
	require.NotNil(t, resp.Run)
	assert.Equal(t, run.ID, resp.Run.ID)
	assert.Equal(t, 2, resp.Count)
}

func TestHandleListIssues_NoRunYet(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusParsingReview)

	req := httptest.NewRequest(http.MethodGet, "/workitems/"+item.ID.String()+"/issues", nil)
	req.SetPathValue("id", item.ID.String())
	w := httptest.NewRecorder()
	s.handleListIssues(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Run   *types.ProofreadingRun `json:"run"`
		Count int                    `json:"count"`
	}
	decodeBody(t, w, &resp)
	assert.Nil(t, resp.Run)
	assert.Equal(t, 0, resp.Count)
}

func TestHandleRecordDecision(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(item.ID, spellingIssue("teh"))
	issue := store.issues[run.ID][0]

	body := fmt.Sprintf(`{"issue_id": %q, "kind": "accepted", "decided_by": "maya"}`, issue.ID)
	w := postJSON(s, s.handleRecordDecision, "/workitems/"+item.ID.String()+"/decisions", item.ID.String(), body)

	require.Equal(t, http.StatusCreated, w.Code)

	var got types.Decision
	decodeBody(t, w, &got)
	assert.Equal(t, issue.ID, got.IssueID)
	assert.Equal(t, types.DecisionAccepted, got.Kind)
	assert.True(t, got.IsCurrent)
}

func TestHandleRecordDecision_Invalid(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(item.ID, spellingIssue("teh"))
	issue := store.issues[run.ID][0]
	id := item.ID.String()

	tests := []struct {
		name string
		body string
		want int
	}{
		{
			name: "missing issue id",
			body: `{"kind": "accepted", "decided_by": "maya"}`,
			want: http.StatusBadRequest,
		},
		{
			name: "unknown kind",
			body: fmt.Sprintf(`{"issue_id": %q, "kind": "deferred", "decided_by": "maya"}`, issue.ID),
			want: http.StatusBadRequest,
		},
		{
			name: "modified without content",
			body: fmt.Sprintf(`{"issue_id": %q, "kind": "modified", "decided_by": "maya"}`, issue.ID),
			want: http.StatusBadRequest,
		},
		{
			name: "missing reviewer",
			body: fmt.Sprintf(`{"issue_id": %q, "kind": "accepted"}`, issue.ID),
			want: http.StatusBadRequest,
		},
		{
			name: "unknown issue",
			body: fmt.Sprintf(`{"issue_id": %q, "kind": "accepted", "decided_by": "maya"}`, uuid.New()),
			want: http.StatusNotFound,
		},
		{
			name: "malformed json",
			body: `{"issue_id": `,
			want: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(s, s.handleRecordDecision, "/workitems/"+id+"/decisions", id, tt.body)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestHandleRecordDecision_IssueFromAnotherItem(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	other := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(other.ID, spellingIssue("teh"))
	foreign := store.issues[run.ID][0]

	body := fmt.Sprintf(`{"issue_id": %q, "kind": "accepted", "decided_by": "maya"}`, foreign.ID)
	w := postJSON(s, s.handleRecordDecision, "/workitems/"+item.ID.String()+"/decisions", item.ID.String(), body)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]string
	decodeBody(t, w, &resp)
	assert.Contains(t, resp["error"], "different work item")
}

func TestHandleListDecisions_TracksSupersededVerdicts(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(item.ID, spellingIssue("teh"), spellingIssue("recieve"))
	first := store.issues[run.ID][0]
	second := store.issues[run.ID][1]
	id := item.ID.String()

	record := func(issueID uuid.UUID, kind string) {
		body := fmt.Sprintf(`{"issue_id": %q, "kind": %q, "decided_by": "maya"}`, issueID, kind)
		w := postJSON(s, s.handleRecordDecision, "/workitems/"+id+"/decisions", id, body)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	record(first.ID, "rejected")
	record(first.ID, "accepted")

	req := httptest.NewRequest(http.MethodGet, "/workitems/"+id+"/decisions", nil)
	req.SetPathValue("id", id)
	w := httptest.NewRecorder()
	s.handleListDecisions(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Decisions  []types.Decision `json:"decisions"`
		Superseded int              `json:"superseded"`
		AllDecided bool             `json:"all_decided"`
	}
	decodeBody(t, w, &resp)
	require.Len(t, resp.Decisions, 1)
	assert.Equal(t, types.DecisionAccepted, resp.Decisions[0].Kind, "the newest verdict wins")
	assert.Equal(t, 1, resp.Superseded)
	assert.False(t, resp.AllDecided, "one issue is still open")

	record(second.ID, "accepted")

	w = httptest.NewRecorder()
	s.handleListDecisions(w, req)
	decodeBody(t, w, &resp)
	assert.Len(t, resp.Decisions, 2)
	assert.True(t, resp.AllDecided)
}

func TestHandleReanalyze(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)

	w := postJSON(s, s.handleReanalyze, "/workitems/"+item.ID.String()+"/reanalyze", item.ID.String(), "")
	require.Equal(t, http.StatusOK, w.Code)

	var got types.WorkItem
	decodeBody(t, w, &got)
	assert.Equal(t, types.StatusProofreading, got.Status)
}

func TestHandleReanalyze_WrongStatus(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusPublished)

	w := postJSON(s, s.handleReanalyze, "/workitems/"+item.ID.String()+"/reanalyze", item.ID.String(), "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleRequestPublish(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)
	run := store.addRun(item.ID, spellingIssue("teh"))
	issue := store.issues[run.ID][0]
	id := item.ID.String()

	// Undecided issues block the queue.
	w := postJSON(s, s.handleRequestPublish, "/workitems/"+id+"/request-publish", id, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	body := fmt.Sprintf(`{"issue_id": %q, "kind": "rejected", "decided_by": "maya"}`, issue.ID)
	created := postJSON(s, s.handleRecordDecision, "/workitems/"+id+"/decisions", id, body)
	require.Equal(t, http.StatusCreated, created.Code)

	w = postJSON(s, s.handleRequestPublish, "/workitems/"+id+"/request-publish", id, `{"actor": "maya"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var got types.WorkItem
	decodeBody(t, w, &got)
	assert.Equal(t, types.StatusReadyToPublish, got.Status)
}

func TestHandleRequestPublish_WithoutRun(t *testing.T) {
	s, store := newTestServer(t)
	item := store.addItem(types.StatusProofreadingReview)

	w := postJSON(s, s.handleRequestPublish, "/workitems/"+item.ID.String()+"/request-publish", item.ID.String(), "")
	assert.Equal(t, http.StatusConflict, w.Code, "an item that was never proofread cannot be queued")
}
