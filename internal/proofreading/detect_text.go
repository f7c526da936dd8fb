// Package proofreading detects quality issues in canonical documents and
// records operator decisions on them. Issues are immutable; a new detection
// run supersedes the previous batch instead of mutating it.
package proofreading

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Detector names recorded on issues.
const (
	DetectorRepeatedWords      = "repeated_words"
	DetectorDoubleSpaces       = "double_spaces"
	DetectorTrailingWhitespace = "trailing_whitespace"
	DetectorPlaceholders       = "placeholders"
	DetectorMetaDescription    = "meta_description"
	DetectorAltText            = "alt_text"
	DetectorLLM                = "llm"
)

var (
	wordPattern     = regexp.MustCompile(`[A-Za-z']+`)
	spaceRunPattern = regexp.MustCompile(` {2,}`)
	// Unrendered template markers, bracketed editor notes, and note words
	placeholderPattern = regexp.MustCompile(`\{\{[^{}]*\}\}|\[(?i:placeholder|todo)[^\]]*\]|\b(?:TODO|TBD|FIXME)\b|(?i:lorem ipsum)`)
)

// DetectRepeatedWords flags immediately repeated words such as "the the".
// A run of three or more repeats is reported as one issue covering the
// whole run, with the first word as the suggested replacement.
func DetectRepeatedWords(body string) []types.Issue {
	var issues []types.Issue
	locs := wordPattern.FindAllStringIndex(body, -1)
	for i := 1; i < len(locs); i++ {
		if !repeatsPrevious(body, locs, i) {
			continue
		}
		start := i - 1
		for i < len(locs) && repeatsPrevious(body, locs, i) {
			i++
		}

		span := &types.Span{Start: locs[start][0], End: locs[i-1][1]}
		word := body[locs[start][0]:locs[start][1]]
		issues = append(issues, types.Issue{
			Detector:    DetectorRepeatedWords,
			Category:    types.CategoryGrammar,
			Severity:    types.SeverityWarning,
			Message:     fmt.Sprintf("the word %q is repeated", strings.ToLower(word)),
			Span:        span,
			Excerpt:     body[span.Start:span.End],
			Replacement: word,
		})
	}
	return issues
}

// repeatsPrevious reports whether word i duplicates word i-1 with only
// spaces or tabs between them. Repeats across line breaks are left
// alone; those are usually intentional, e.g. a heading echoing a word.
func repeatsPrevious(body string, locs [][]int, i int) bool {
	between := body[locs[i-1][1]:locs[i][0]]
	if between == "" || strings.Trim(between, " \t") != "" {
		return false
	}
	return strings.EqualFold(body[locs[i-1][0]:locs[i-1][1]], body[locs[i][0]:locs[i][1]])
}

// DetectDoubleSpaces flags runs of spaces inside a line. Leading
// indentation and end-of-line runs belong to other rules.
func DetectDoubleSpaces(body string) []types.Issue {
	var issues []types.Issue
	for _, loc := range spaceRunPattern.FindAllStringIndex(body, -1) {
		if loc[0] == 0 || body[loc[0]-1] == '\n' {
			continue
		}
		if loc[1] >= len(body) || body[loc[1]] == '\n' {
			continue
		}

		issues = append(issues, types.Issue{
			Detector:    DetectorDoubleSpaces,
			Category:    types.CategoryStyle,
			Severity:    types.SeverityInfo,
			Message:     "multiple spaces between words",
			Span:        &types.Span{Start: loc[0], End: loc[1]},
			Excerpt:     body[loc[0]:loc[1]],
			Replacement: " ",
		})
	}
	return issues
}

// DetectTrailingWhitespace flags whitespace hanging at the end of a line.
func DetectTrailingWhitespace(body string) []types.Issue {
	var issues []types.Issue
	offset := 0
	for _, line := range strings.SplitAfter(body, "\n") {
		content := strings.TrimSuffix(line, "\n")
		trimmed := strings.TrimRight(content, " \t")
		if len(trimmed) < len(content) {
			span := &types.Span{Start: offset + len(trimmed), End: offset + len(content)}
			issues = append(issues, types.Issue{
				Detector:    DetectorTrailingWhitespace,
				Category:    types.CategoryStyle,
				Severity:    types.SeverityInfo,
				Message:     "trailing whitespace at end of line",
				Span:        span,
				Excerpt:     body[span.Start:span.End],
				Replacement: "",
			})
		}
		offset += len(line)
	}
	return issues
}

// DetectPlaceholders flags unresolved template markers and editor notes
// that must not reach publication. These carry no suggested replacement;
// the operator supplies the real content or rejects the finding.
func DetectPlaceholders(body string) []types.Issue {
	var issues []types.Issue
	for _, loc := range placeholderPattern.FindAllStringIndex(body, -1) {
		issues = append(issues, types.Issue{
			Detector: DetectorPlaceholders,
			Category: types.CategoryConsistency,
			Severity: types.SeverityError,
			Message:  fmt.Sprintf("unresolved placeholder %q", body[loc[0]:loc[1]]),
			Span:     &types.Span{Start: loc[0], End: loc[1]},
			Excerpt:  body[loc[0]:loc[1]],
		})
	}
	return issues
}
