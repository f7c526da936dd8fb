package publishing

import (
	"strings"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// BuildScript lays out the ordered steps that publish one document: open
// a session, create the entry, fill content and metadata, submit, and
// verify the published artifact. body is the decision-resolved text, not
// the raw document body. Steps with an empty payload are omitted rather
// than sent as no-ops, so the audit trail only shows work the agent
// actually performed. Media without a local file cannot be uploaded and
// is skipped the same way.
func BuildScript(doc *types.CanonicalDocument, body string, taxonomy []string) []Instruction {
	title := Instruction{Step: types.StepFillTitle, Value: doc.Title}
	if s := strings.TrimSpace(doc.Subtitle); s != "" {
		// The subtitle rides with the title step; targets without a
		// subtitle field ignore it.
		title.Items = []string{s}
	}

	script := []Instruction{
		{Step: types.StepOpenSession},
		{Step: types.StepCreateEntry},
		title,
		{Step: types.StepFillBody, Value: body},
	}

	for _, m := range doc.Media {
		if m.LocalPath == "" {
			continue
		}
		script = append(script, Instruction{
			Step:  types.StepUploadMedia,
			Value: m.LocalPath,
			Items: []string{m.AltText},
		})
	}

	if v := strings.TrimSpace(doc.MetaDescription.Value); v != "" {
		script = append(script, Instruction{Step: types.StepFillMetaDescription, Value: v})
	}
	if len(doc.Keywords) > 0 {
		script = append(script, Instruction{Step: types.StepFillKeywords, Items: doc.Keywords})
	}
	if len(taxonomy) > 0 {
		script = append(script, Instruction{Step: types.StepSetTaxonomy, Items: taxonomy})
	}

	return append(script,
		Instruction{Step: types.StepSubmit},
		Instruction{Step: types.StepVerify},
	)
}
