package observability

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

func TestPrintQueue(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintQueue(map[types.Status]int{
		types.StatusPending:        4,
		types.StatusProofreading:   2,
		types.StatusReadyToPublish: 1,
		types.StatusFailed:         1,
	})
	output := buf.String()

	assert.Contains(t, output, "PIPELINE QUEUE")
	assert.Contains(t, output, "pending")
	assert.Contains(t, output, "ready_to_publish")
	assert.Contains(t, output, "⚠ failed")
	assert.Contains(t, output, "total")
	assert.Contains(t, output, "8")
}

func TestPrintFailures(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintFailures(map[types.Stage]int{
		types.StageParse:   2,
		types.StagePublish: 1,
	})
	output := buf.String()

	assert.Contains(t, output, "FAILURES BY STAGE")
	assert.Contains(t, output, "parse")
	assert.Contains(t, output, "publish")
	// Stages without failures are not listed.
	assert.NotContains(t, output, "proofread")
}

func TestPrintFailures_NoneIsSilent(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintFailures(nil)
	assert.Empty(t, buf.String())
}

func TestPrintWorkItem(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	stage := types.StagePublish
	lastErr := "selector #publish-button not found"
	item := &types.WorkItem{
		ID:          uuid.New(),
		SourceID:    "drafts/launch-notes.html",
		RevisionTag: "rev-7",
		Status:      types.StatusFailed,
		Version:     9,
		RetryCount:  2,
		FailedStage: &stage,
		LastError:   &lastErr,
		UpdatedAt:   time.Date(2025, 6, 1, 10, 30, 0, 0, time.UTC),
	}

	p.PrintWorkItem(item)
	output := buf.String()

	assert.Contains(t, output, "WORK ITEM "+item.ID.String()[:8])
	assert.Contains(t, output, "drafts/launch-notes.html")
	assert.Contains(t, output, "rev-7")
	assert.Contains(t, output, "failed (v9)")
	assert.Contains(t, output, "Failed in: publish")
	assert.Contains(t, output, "selector #publish-button not found")
}

func TestPrintWorkItem_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintWorkItem(nil)

	assert.Empty(t, buf.String())
}

func TestPrintDocument(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	doc := &types.CanonicalDocument{
		Title:      "Launch Notes",
		Subtitle:   "What shipped this quarter",
		Author:     "Dana Reyes",
		Body:       strings.Repeat("a", 1200),
		Media:      []types.MediaRef{{SourceURL: "https://cdn.example.com/hero.png"}},
		Keywords:   []string{"launch", "release"},
		Parser:     "goquery",
		Confidence: 0.92,
	}

	p.PrintDocument(doc)
	output := buf.String()

	assert.Contains(t, output, "PARSED DOCUMENT")
	assert.Contains(t, output, "Launch Notes")
	assert.Contains(t, output, "Dana Reyes")
	assert.Contains(t, output, "1200 chars, 1 media")
	assert.Contains(t, output, "launch, release")
	assert.Contains(t, output, "goquery (confidence 0.92)")
}

func TestPrintDocument_Nil(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintDocument(nil)

	assert.Empty(t, buf.String())
}

func TestPrintIssues(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	run := &types.ProofreadingRun{Number: 2, Trigger: "pipeline"}
	issues := []types.Issue{
		{
			Severity: types.SeverityError,
			Category: types.CategorySpelling,
			Message:  "possible misspelling",
			Excerpt:  "recieve",
		},
		{
			Severity: types.SeverityInfo,
			Category: types.CategoryStyle,
			Message:  "sentence runs long",
		},
	}

	p.PrintIssues(run, issues, 1)
	output := buf.String()

	assert.Contains(t, output, "PROOFREADING ISSUES")
	assert.Contains(t, output, "Run #2 (pipeline): 2 issues, 1 decided")
	assert.Contains(t, output, "[error/spelling] possible misspelling")
	assert.Contains(t, output, `"recieve"`)
	assert.Contains(t, output, "[info/style] sentence runs long")
}

func TestPrintIssues_CleanRun(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	run := &types.ProofreadingRun{Number: 1, Trigger: "pipeline"}

	p.PrintIssues(run, nil, 0)
	output := buf.String()

	assert.Contains(t, output, "NO ISSUES FOUND")
}

func TestPrintIssues_TruncatesLongList(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	run := &types.ProofreadingRun{Number: 1, Trigger: "pipeline"}
	issues := make([]types.Issue, 8)
	for i := range issues {
		issues[i] = types.Issue{
			Severity: types.SeverityWarning,
			Category: types.CategoryGrammar,
			Message:  "subject-verb agreement",
		}
	}

	p.PrintIssues(run, issues, 0)
	output := buf.String()

	assert.Contains(t, output, "... and 3 more issues")
}

func TestPrintPublishAttempts(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	tasks := []types.PublishTask{
		{
			Attempt:      1,
			Target:       "staging",
			Status:       types.TaskFailed,
			FailedStep:   types.StepUploadMedia,
			FailureClass: types.FailureRecoverable,
			Error:        "upload timed out",
		},
		{
			Attempt:      2,
			Target:       "staging",
			Status:       types.TaskCompleted,
			PublishedURL: "https://cms.example.com/articles/launch-notes",
		},
	}

	p.PrintPublishAttempts(tasks)
	output := buf.String()

	assert.Contains(t, output, "PUBLISH ATTEMPTS")
	assert.Contains(t, output, "Total attempts: 2")
	assert.Contains(t, output, "#1  staging → failed")
	assert.Contains(t, output, "Failed at: upload_media (recoverable)")
	assert.Contains(t, output, "upload timed out")
	assert.Contains(t, output, "#2  staging → completed")
	assert.Contains(t, output, "URL: https://cms.example.com/articles/launch-notes")
}

func TestPrintPublishAttempts_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintPublishAttempts(nil)

	assert.Empty(t, buf.String())
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	transitions := []types.StatusTransition{
		{
			FromStatus: types.StatusPending,
			ToStatus:   types.StatusParsing,
			Actor:      "worker",
			Reason:     "claimed for parsing",
			CreatedAt:  time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		},
		{
			FromStatus: types.StatusParsing,
			ToStatus:   types.StatusParsingReview,
			Actor:      "worker",
			CreatedAt:  time.Date(2025, 6, 1, 9, 1, 0, 0, time.UTC),
		},
	}

	p.PrintHistory(transitions)
	output := buf.String()

	assert.Contains(t, output, "STATUS HISTORY")
	assert.Contains(t, output, "pending → parsing")
	assert.Contains(t, output, "worker: claimed for parsing")
	assert.Contains(t, output, "parsing → parsing_review")
}

func TestPrintBox_LongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	// Test with a work item whose source path exceeds the box width
	item := &types.WorkItem{
		ID:          uuid.New(),
		SourceID:    "drafts/a-very-deeply-nested-folder/with-an-extremely-long-name/launch-notes.html",
		RevisionTag: "rev-1",
		Status:      types.StatusPending,
	}

	p.PrintWorkItem(item)
	output := buf.String()

	// Should contain box characters
	assert.True(t, strings.Contains(output, "┌"))
	assert.True(t, strings.Contains(output, "└"))
	assert.True(t, strings.Contains(output, "│"))
}
