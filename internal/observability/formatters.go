// Package observability provides formatted output utilities for the status command.
package observability

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the status command
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintQueue outputs per-status work item counts in pipeline order.
func (p *Printer) PrintQueue(counts map[types.Status]int) {
	var sb strings.Builder

	total := 0
	for _, status := range types.AllStatuses {
		count := counts[status]
		total += count
		marker := " "
		if status == types.StatusFailed && count > 0 {
			marker = "⚠"
		}
		sb.WriteString(fmt.Sprintf("%s %-22s %4d\n", marker, status, count))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("  %-22s %4d", "total", total))

	p.printBox("PIPELINE QUEUE", sb.String())
}

// PrintFailures outputs failed work item counts per originating stage.
// Nothing is printed when there are no failures.
func (p *Printer) PrintFailures(counts map[types.Stage]int) {
	if len(counts) == 0 {
		return
	}

	var sb strings.Builder
	for _, stage := range []types.Stage{types.StageParse, types.StageProofread, types.StageOptimize, types.StagePublish} {
		if count, ok := counts[stage]; ok {
			sb.WriteString(fmt.Sprintf("  %-22s %4d\n", stage, count))
		}
	}

	p.printBox("FAILURES BY STAGE", strings.TrimRight(sb.String(), "\n"))
}

// PrintWorkItem outputs a human-readable summary of one work item.
func (p *Printer) PrintWorkItem(item *types.WorkItem) {
	if item == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Source:    %s\n", item.SourceID))
	sb.WriteString(fmt.Sprintf("Revision:  %s\n", item.RevisionTag))
	sb.WriteString(fmt.Sprintf("Status:    %s (v%d)\n", item.Status, item.Version))
	sb.WriteString(fmt.Sprintf("Retries:   %d\n", item.RetryCount))
	if item.FailedStage != nil {
		sb.WriteString(fmt.Sprintf("Failed in: %s\n", *item.FailedStage))
	}
	if item.LastError != nil {
		lastErr := *item.LastError
		if len(lastErr) > 45 {
			lastErr = lastErr[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Error:     %s\n", lastErr))
	}
	sb.WriteString(fmt.Sprintf("Updated:   %s", item.UpdatedAt.Format(time.RFC3339)))

	p.printBox("WORK ITEM "+item.ID.String()[:8], sb.String())
}

// PrintDocument outputs a summary of the parsed document.
func (p *Printer) PrintDocument(doc *types.CanonicalDocument) {
	if doc == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:     %s\n", doc.Title))
	if doc.Subtitle != "" {
		sb.WriteString(fmt.Sprintf("Subtitle:  %s\n", doc.Subtitle))
	}
	if doc.Author != "" {
		sb.WriteString(fmt.Sprintf("Author:    %s\n", doc.Author))
	}
	sb.WriteString(fmt.Sprintf("Body:      %d chars, %d media\n", len(doc.Body), len(doc.Media)))
	if len(doc.Keywords) > 0 {
		keywords := strings.Join(doc.Keywords, ", ")
		if len(keywords) > 40 {
			keywords = keywords[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("Keywords:  %s\n", keywords))
	}
	sb.WriteString(fmt.Sprintf("Parser:    %s (confidence %.2f)", doc.Parser, doc.Confidence))
	if doc.PublishedURL != "" {
		sb.WriteString(fmt.Sprintf("\nLive at:   %s", doc.PublishedURL))
	}

	p.printBox("PARSED DOCUMENT", sb.String())
}

// PrintIssues outputs the latest run's issues and how many have a decision.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintIssues(run *types.ProofreadingRun, issues []types.Issue, decided int) {
	if run == nil {
		return
	}
	if len(issues) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO ISSUES FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run #%d (%s): %d issues, %d decided\n\n", run.Number, run.Trigger, len(issues), decided))

	count := min(len(issues), maxItemsToShow)
	for i := 0; i < count; i++ {
		issue := issues[i]
		message := issue.Message
		if len(message) > 45 {
			message = message[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("• [%s/%s] %s\n", issue.Severity, issue.Category, message))
		if issue.Excerpt != "" {
			excerpt := issue.Excerpt
			if len(excerpt) > 40 {
				excerpt = excerpt[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf("  %q\n", excerpt))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(issues) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more issues", len(issues)-maxItemsToShow))
	}

	p.printBox("PROOFREADING ISSUES", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintPublishAttempts outputs each publish task with its outcome.
func (p *Printer) PrintPublishAttempts(tasks []types.PublishTask) {
	if len(tasks) == 0 {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Total attempts: %d\n\n", len(tasks)))

	count := min(len(tasks), maxItemsToShow)
	for i := 0; i < count; i++ {
		task := tasks[i]
		sb.WriteString(fmt.Sprintf("#%d  %s → %s\n", task.Attempt, task.Target, task.Status))
		if task.FailedStep != "" {
			sb.WriteString(fmt.Sprintf("    Failed at: %s (%s)\n", task.FailedStep, task.FailureClass))
		}
		if task.Error != "" {
			errText := task.Error
			if len(errText) > 45 {
				errText = errText[:42] + "..."
			}
			sb.WriteString(fmt.Sprintf("    %s\n", errText))
		}
		if task.PublishedURL != "" {
			sb.WriteString(fmt.Sprintf("    URL: %s\n", task.PublishedURL))
		}
		if i < count-1 {
			sb.WriteString("\n")
		}
	}

	if len(tasks) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more attempts", len(tasks)-maxItemsToShow))
	}

	p.printBox("PUBLISH ATTEMPTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintHistory outputs status transitions, oldest first.
func (p *Printer) PrintHistory(transitions []types.StatusTransition) {
	if len(transitions) == 0 {
		return
	}

	var sb strings.Builder
	for i, tr := range transitions {
		sb.WriteString(fmt.Sprintf("%s  %s → %s\n", tr.CreatedAt.Format("01-02 15:04"), tr.FromStatus, tr.ToStatus))
		detail := tr.Actor
		if tr.Reason != "" {
			detail += ": " + tr.Reason
		}
		if len(detail) > 40 {
			detail = detail[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("             %s\n", detail))
		if i < len(transitions)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("STATUS HISTORY", strings.TrimSuffix(sb.String(), "\n"))
}
