package ingestion

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingofalbert/cms-automation-sub000/internal/lifecycle"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// memStore implements the deduplicator and ledger store surfaces in memory.
type memStore struct {
	items       map[string]*types.WorkItem
	snapshots   map[uuid.UUID]*types.SourceDocument
	transitions []types.StatusTransition
	docDeletes  int
	runDeletes  int
	suggDeletes int
}

func newMemStore() *memStore {
	return &memStore{
		items:     make(map[string]*types.WorkItem),
		snapshots: make(map[uuid.UUID]*types.SourceDocument),
	}
}

func (m *memStore) GetWorkItemBySource(_ context.Context, sourceID string) (*types.WorkItem, error) {
	item, ok := m.items[sourceID]
	if !ok {
		return nil, nil
	}
	out := *item
	return &out, nil
}

func (m *memStore) GetWorkItem(_ context.Context, id uuid.UUID) (*types.WorkItem, error) {
	for _, item := range m.items {
		if item.ID == id {
			out := *item
			return &out, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateWorkItem(_ context.Context, sourceID, revisionTag string) (*types.WorkItem, error) {
	item := &types.WorkItem{
		ID:          uuid.New(),
		SourceID:    sourceID,
		RevisionTag: revisionTag,
		Status:      types.StatusPending,
		Version:     1,
	}
	m.items[sourceID] = item
	out := *item
	return &out, nil
}

func (m *memStore) SaveSourceDocument(_ context.Context, workItemID uuid.UUID, doc *types.SourceDocument) error {
	m.snapshots[workItemID] = doc
	return nil
}

func (m *memStore) UpdateRevisionTag(_ context.Context, workItemID uuid.UUID, revisionTag string) error {
	for _, item := range m.items {
		if item.ID == workItemID {
			item.RevisionTag = revisionTag
		}
	}
	return nil
}

func (m *memStore) ApplyTransition(_ context.Context, req lifecycle.TransitionRequest) (*types.WorkItem, error) {
	for _, item := range m.items {
		if item.ID != req.WorkItemID {
			continue
		}
		if item.Status != req.From || item.Version != req.Version {
			return nil, lifecycle.ErrStaleStatus
		}
		item.Status = req.To
		item.Version++
		if req.SetRetryCount != nil {
			item.RetryCount = *req.SetRetryCount
		}
		if req.ClearFailure {
			item.FailedStage = nil
			item.LastError = nil
		}
		m.transitions = append(m.transitions, types.StatusTransition{
			WorkItemID: item.ID,
			FromStatus: req.From,
			ToStatus:   req.To,
			Actor:      req.Actor,
			Reason:     req.Reason,
		})
		out := *item
		return &out, nil
	}
	return nil, lifecycle.ErrNotFound
}

func (m *memStore) ListTransitions(_ context.Context, workItemID uuid.UUID) ([]types.StatusTransition, error) {
	var out []types.StatusTransition
	for _, tr := range m.transitions {
		if tr.WorkItemID == workItemID {
			out = append(out, tr)
		}
	}
	return out, nil
}

func (m *memStore) DeleteDocument(_ context.Context, _ uuid.UUID) error {
	m.docDeletes++
	return nil
}

func (m *memStore) DeleteCurrentRun(_ context.Context, _ uuid.UUID) error {
	m.runDeletes++
	return nil
}

func (m *memStore) DeleteSuggestions(_ context.Context, _ uuid.UUID) error {
	m.suggDeletes++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDeduplicator(store *memStore) *Deduplicator {
	ledger := lifecycle.NewLedger(store, 3, testLogger())
	return NewDeduplicator(store, ledger, testLogger())
}

func doc(sourceID, revision, content string) *types.SourceDocument {
	return &types.SourceDocument{
		SourceID:    sourceID,
		RevisionTag: revision,
		Title:       "Draft",
		Content:     content,
	}
}

func TestIngest_NewDocument(t *testing.T) {
	store := newMemStore()
	dedup := newTestDeduplicator(store)

	id, created, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", "<p>hello</p>"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, uuid.Nil, id)

	item := store.items["drafts/a.html"]
	require.NotNil(t, item)
	assert.Equal(t, types.StatusPending, item.Status)
	assert.Equal(t, "rev-1", item.RevisionTag)

	snapshot := store.snapshots[id]
	require.NotNil(t, snapshot)
	assert.Equal(t, "<p>hello</p>", snapshot.Content)
}

func TestIngest_UnchangedRevisionIsNoOp(t *testing.T) {
	store := newMemStore()
	dedup := newTestDeduplicator(store)

	first, created, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", "<p>one</p>"))
	require.NoError(t, err)
	require.True(t, created)

	second, created, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", "<p>one</p>"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first, second)

	// Nothing was reset or cascaded
	assert.Empty(t, store.transitions)
	assert.Zero(t, store.docDeletes)
	assert.Zero(t, store.runDeletes)
	assert.Zero(t, store.suggDeletes)
}

func TestIngest_ChangedRevisionResetsItem(t *testing.T) {
	store := newMemStore()
	dedup := newTestDeduplicator(store)

	id, _, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", "<p>one</p>"))
	require.NoError(t, err)

	// Simulate the item having progressed past parsing
	store.items["drafts/a.html"].Status = types.StatusProofreadingReview

	same, created, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-2", "<p>two</p>"))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, same)

	item := store.items["drafts/a.html"]
	assert.Equal(t, types.StatusPending, item.Status)
	assert.Equal(t, "rev-2", item.RevisionTag)
	assert.Equal(t, 0, item.RetryCount)

	// Stale derived data was cleared and the snapshot replaced
	assert.Equal(t, 1, store.docDeletes)
	assert.Equal(t, 1, store.runDeletes)
	assert.Equal(t, 1, store.suggDeletes)
	assert.Equal(t, "<p>two</p>", store.snapshots[id].Content)

	require.Len(t, store.transitions, 1)
	assert.Equal(t, types.StatusProofreadingReview, store.transitions[0].FromStatus)
	assert.Equal(t, types.StatusPending, store.transitions[0].ToStatus)
	assert.Equal(t, "ingestion", store.transitions[0].Actor)
	assert.Contains(t, store.transitions[0].Reason, "rev-2")
}

func TestIngest_ChangedRevisionBlockedDuringPublishing(t *testing.T) {
	store := newMemStore()
	dedup := newTestDeduplicator(store)

	id, _, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", "<p>one</p>"))
	require.NoError(t, err)

	store.items["drafts/a.html"].Status = types.StatusPublishing

	_, _, err = dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-2", "<p>two</p>"))
	require.Error(t, err)

	var invalid *lifecycle.InvalidTransitionError
	assert.ErrorAs(t, err, &invalid)

	// Nothing was touched
	assert.Equal(t, "rev-1", store.items["drafts/a.html"].RevisionTag)
	assert.Equal(t, "<p>one</p>", store.snapshots[id].Content)
	assert.Zero(t, store.docDeletes)
}

func TestIngest_InvalidDocumentLeavesNoRow(t *testing.T) {
	store := newMemStore()
	dedup := newTestDeduplicator(store)

	_, _, err := dedup.Ingest(context.Background(), doc("drafts/a.html", "rev-1", ""))
	require.Error(t, err)

	var invalid *InvalidDocumentError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "content", invalid.Field)
	assert.Empty(t, store.items)
	assert.Empty(t, store.snapshots)
}

func TestValidateDocument(t *testing.T) {
	tests := []struct {
		name      string
		doc       *types.SourceDocument
		wantField string
	}{
		{
			name:      "nil document",
			doc:       nil,
			wantField: "",
		},
		{
			name:      "missing source id",
			doc:       doc("", "rev-1", "text"),
			wantField: "source_id",
		},
		{
			name:      "missing revision tag",
			doc:       doc("drafts/a.html", "", "text"),
			wantField: "revision_tag",
		},
		{
			name:      "empty content",
			doc:       doc("drafts/a.html", "rev-1", ""),
			wantField: "content",
		},
		{
			name:      "oversized content",
			doc:       doc("drafts/a.html", "rev-1", strings.Repeat("x", MaxDocumentBytes+1)),
			wantField: "content",
		},
		{
			name:      "invalid utf-8",
			doc:       doc("drafts/a.html", "rev-1", "abc\xff\xfe"),
			wantField: "content",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDocument(tt.doc)
			require.Error(t, err)

			var invalid *InvalidDocumentError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tt.wantField, invalid.Field)
		})
	}

	assert.NoError(t, ValidateDocument(doc("drafts/a.html", "rev-1", "<p>fine</p>")))
}
