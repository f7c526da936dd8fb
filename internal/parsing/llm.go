package parsing

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/schemas"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// llmConfidence is recorded on documents produced by the model path.
const llmConfidence = 0.9

// llmDocument mirrors the document_structure schema.
type llmDocument struct {
	Title           string     `json:"title"`
	Subtitle        string     `json:"subtitle,omitempty"`
	Author          string     `json:"author,omitempty"`
	Body            string     `json:"body"`
	Media           []llmMedia `json:"media,omitempty"`
	MetaDescription string     `json:"meta_description,omitempty"`
	Keywords        []string   `json:"keywords,omitempty"`
}

type llmMedia struct {
	SourceURL string `json:"source_url"`
	AltText   string `json:"alt_text,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// ExtractWithLLM asks the model to segment a document the heuristic pass
// could not handle confidently. The response must satisfy the
// document_structure schema before it is accepted. Makes exactly one model
// call; retries belong to the caller.
func ExtractWithLLM(ctx context.Context, client llm.Client, content string) (*Extraction, error) {
	schema := llm.DocumentStructureSchema()
	prompt := llm.BuildExtractionPrompt(schema, content)

	response, err := client.GenerateJSON(ctx, prompt, llm.TierStandard)
	if err != nil {
		return nil, &APICallError{
			Message: "structural extraction failed",
			Cause:   err,
		}
	}
	response = llm.CleanJSONBlock(response)

	if err := schemas.ValidatePayload(schemas.DocumentStructure, response); err != nil {
		return nil, &ParseError{
			Message: "model response failed schema validation",
			Cause:   err,
		}
	}

	var parsed llmDocument
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, &ParseError{
			Message: "failed to parse model response",
			Cause:   err,
		}
	}

	ex := &Extraction{
		Title:           CollapseWhitespace(parsed.Title),
		Subtitle:        CollapseWhitespace(parsed.Subtitle),
		Author:          StripByline(parsed.Author),
		Body:            NormalizeBody(parsed.Body),
		MetaDescription: CollapseWhitespace(parsed.MetaDescription),
		Keywords:        NormalizeKeywords(parsed.Keywords),
		Confidence:      llmConfidence,
	}
	for _, m := range parsed.Media {
		src := strings.TrimSpace(m.SourceURL)
		if src == "" {
			continue
		}
		ex.Media = append(ex.Media, types.MediaRef{
			SourceURL: src,
			AltText:   strings.TrimSpace(m.AltText),
			Caption:   strings.TrimSpace(m.Caption),
		})
	}
	return ex, nil
}
