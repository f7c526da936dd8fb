package parsing

import (
	"regexp"
	"strings"
)

var (
	spaceRun     = regexp.MustCompile(`[ \t]+`)
	anySpaceRun  = regexp.MustCompile(`\s+`)
	blankLineRun = regexp.MustCompile(`\n\n\n+`)
)

// NormalizeBody cleans extracted body text while preserving paragraph
// structure. Line endings become LF, trailing whitespace goes away, runs
// of spaces collapse to one, and runs of blank lines shrink to a single
// blank line. Markdown headings and bullets keep their markers.
func NormalizeBody(content string) string {
	if content == "" {
		return ""
	}

	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	lines := strings.Split(content, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		cleaned = append(cleaned, normalizeLine(line))
	}

	result := strings.Join(cleaned, "\n")
	result = blankLineRun.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// normalizeLine trims and collapses one line, keeping leading indentation
// and list or heading markers intact.
func normalizeLine(line string) string {
	line = strings.TrimRight(line, " \t")
	trimmed := strings.TrimLeft(line, " \t")
	if trimmed == "" {
		return ""
	}

	// Headings move to column zero
	if strings.HasPrefix(trimmed, "#") {
		return trimmed
	}

	indent := len(line) - len(trimmed)
	collapsed := spaceRun.ReplaceAllString(trimmed, " ")
	if indent > 0 {
		return strings.Repeat(" ", indent) + collapsed
	}
	return collapsed
}

// CollapseWhitespace flattens a single-line field: newlines, tabs, and
// space runs become one space.
func CollapseWhitespace(s string) string {
	return strings.TrimSpace(anySpaceRun.ReplaceAllString(s, " "))
}

// NormalizeKeywords lowercases, trims, and deduplicates keyword tags,
// preserving first-seen order.
func NormalizeKeywords(keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}

	out := make([]string, 0, len(keywords))
	seen := make(map[string]bool)
	for _, kw := range keywords {
		normalized := strings.ToLower(strings.TrimSpace(kw))
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// bylinePrefixes are markers that introduce an author credit.
var bylinePrefixes = []string{"by ", "author: ", "written by "}

// StripByline removes a leading byline marker from an author string and
// returns the bare name. Strings without a marker come back trimmed but
// otherwise unchanged.
func StripByline(s string) string {
	s = CollapseWhitespace(s)
	lower := strings.ToLower(s)
	for _, prefix := range bylinePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return strings.TrimSpace(s[len(prefix):])
		}
	}
	return s
}
