package proofreading

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/prompts"
	"github.com/kingofalbert/cms-automation-sub000/internal/schemas"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// llmIssue mirrors one entry of the detected-issues payload.
type llmIssue struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	Excerpt     string `json:"excerpt"`
	Replacement string `json:"replacement,omitempty"`
}

type llmIssueList struct {
	Issues []llmIssue `json:"issues"`
}

// DetectWithLLM asks the model for the spelling, grammar, style, and
// consistency findings the deterministic rules cannot catch. Reported
// excerpts are located in the body to recover spans; an excerpt that is
// absent or matches in more than one place keeps the finding with a nil
// span, so the resolver never applies it to the wrong occurrence.
func DetectWithLLM(ctx context.Context, client llm.Client, doc *types.CanonicalDocument) ([]types.Issue, error) {
	template := prompts.MustGet("proofreading.json", "detect_issues")
	prompt := prompts.Format(template, map[string]string{
		"Title": doc.Title,
		"Body":  doc.Body,
	})

	response, err := client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, fmt.Errorf("issue detection call failed: %w", err)
	}

	cleaned := llm.CleanJSONBlock(response)
	if err := schemas.ValidatePayload(schemas.DetectedIssues, cleaned); err != nil {
		return nil, fmt.Errorf("issue payload rejected: %w", err)
	}

	var payload llmIssueList
	if err := json.Unmarshal([]byte(cleaned), &payload); err != nil {
		return nil, fmt.Errorf("failed to parse issue payload: %w", err)
	}

	issues := make([]types.Issue, 0, len(payload.Issues))
	for _, raw := range payload.Issues {
		issues = append(issues, types.Issue{
			Detector:    DetectorLLM,
			Category:    types.IssueCategory(raw.Category),
			Severity:    types.IssueSeverity(raw.Severity),
			Message:     strings.TrimSpace(raw.Message),
			Span:        locateExcerpt(doc.Body, raw.Excerpt),
			Excerpt:     raw.Excerpt,
			Replacement: raw.Replacement,
		})
	}
	return issues, nil
}

// locateExcerpt maps a reported excerpt back to a byte span in the body.
// Only a unique match is trusted.
func locateExcerpt(body, excerpt string) *types.Span {
	if excerpt == "" {
		return nil
	}
	first := strings.Index(body, excerpt)
	if first < 0 {
		return nil
	}
	if strings.Contains(body[first+1:], excerpt) {
		return nil
	}
	return &types.Span{Start: first, End: first + len(excerpt)}
}
