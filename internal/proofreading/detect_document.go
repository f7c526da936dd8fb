package proofreading

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// maxMetaDescriptionRunes is the longest meta description search engines
// display without truncation.
const maxMetaDescriptionRunes = 155

// DetectMetaDescription flags a missing or overlong meta description.
// These findings point at document metadata rather than the body, so
// they carry no span.
func DetectMetaDescription(doc *types.CanonicalDocument) []types.Issue {
	value := strings.TrimSpace(doc.MetaDescription.Value)
	if value == "" {
		return []types.Issue{{
			Detector: DetectorMetaDescription,
			Category: types.CategoryMetadata,
			Severity: types.SeverityWarning,
			Message:  "document has no meta description",
		}}
	}
	if n := utf8.RuneCountInString(value); n > maxMetaDescriptionRunes {
		return []types.Issue{{
			Detector: DetectorMetaDescription,
			Category: types.CategoryMetadata,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("meta description is %d characters, limit is %d", n, maxMetaDescriptionRunes),
			Excerpt:  value,
		}}
	}
	return nil
}

// DetectMissingAltText flags media references without alternative text.
func DetectMissingAltText(doc *types.CanonicalDocument) []types.Issue {
	var issues []types.Issue
	for _, m := range doc.Media {
		if strings.TrimSpace(m.AltText) != "" {
			continue
		}
		issues = append(issues, types.Issue{
			Detector: DetectorAltText,
			Category: types.CategoryMarkup,
			Severity: types.SeverityWarning,
			Message:  fmt.Sprintf("image %s has no alt text", m.SourceURL),
			Excerpt:  m.SourceURL,
		})
	}
	return issues
}
