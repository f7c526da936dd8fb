package proofreading

import (
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// edit is one pending replacement of a body span.
type edit struct {
	issueID     uuid.UUID
	span        types.Span
	replacement string
}

// ResolveBody applies the current accepted and modified decisions to the
// body text. Only issues with a span participate; span-less findings
// (metadata, unlocated model excerpts) are advisory and leave the body
// untouched. An accepted decision applies the issue's suggested
// replacement verbatim, so an empty suggestion deletes the span; a
// modified decision applies the reviewer's text instead. Replacements
// are applied back-to-front by offset so earlier spans stay valid, and
// overlapping spans are rejected rather than resolved by application
// order.
func ResolveBody(body string, issues []types.Issue, decisions []types.Decision) (string, error) {
	byID := make(map[uuid.UUID]*types.Issue, len(issues))
	for i := range issues {
		byID[issues[i].ID] = &issues[i]
	}

	var edits []edit
	for _, d := range decisions {
		if !d.IsCurrent || d.Kind == types.DecisionRejected {
			continue
		}
		issue, ok := byID[d.IssueID]
		if !ok {
			return "", fmt.Errorf("decision %s references an issue outside this run", d.ID)
		}
		if issue.Span == nil {
			continue
		}

		span := *issue.Span
		if span.Start < 0 || span.End < span.Start || span.End > len(body) {
			return "", fmt.Errorf("issue %s has span [%d,%d) outside the body", issue.ID, span.Start, span.End)
		}
		if issue.Excerpt != "" && body[span.Start:span.End] != issue.Excerpt {
			return "", fmt.Errorf("issue %s excerpt no longer matches the body at [%d,%d)", issue.ID, span.Start, span.End)
		}

		replacement := issue.Replacement
		if d.Kind == types.DecisionModified {
			replacement = d.ModifiedContent
		}
		edits = append(edits, edit{issueID: issue.ID, span: span, replacement: replacement})
	}

	if len(edits) == 0 {
		return body, nil
	}

	sort.Slice(edits, func(i, j int) bool {
		if edits[i].span.Start != edits[j].span.Start {
			return edits[i].span.Start < edits[j].span.Start
		}
		return edits[i].span.End < edits[j].span.End
	})
	for i := 1; i < len(edits); i++ {
		if edits[i-1].span.End > edits[i].span.Start {
			return "", &SpanConflictError{
				FirstIssueID:  edits[i-1].issueID,
				SecondIssueID: edits[i].issueID,
			}
		}
	}

	for i := len(edits) - 1; i >= 0; i-- {
		e := edits[i]
		body = body[:e.span.Start] + e.replacement + body[e.span.End:]
	}
	return body, nil
}
