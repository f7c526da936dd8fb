// Package optimization proposes publication metadata for parsed documents.
// Proposals are stored for operator review and never applied automatically;
// a failed run is logged by the caller and never blocks the pipeline.
package optimization

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/llm"
	"github.com/kingofalbert/cms-automation-sub000/internal/prompts"
	"github.com/kingofalbert/cms-automation-sub000/internal/schemas"
	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Store is the persistence surface the optimizer needs.
type Store interface {
	GetDocument(ctx context.Context, workItemID uuid.UUID) (*types.CanonicalDocument, error)
	ReplaceSuggestions(ctx context.Context, workItemID uuid.UUID, suggestions []types.Suggestion) ([]types.Suggestion, error)
}

// Optimizer generates the suggestion set for a work item's canonical
// document.
type Optimizer struct {
	store  Store
	client llm.Client
	logger *slog.Logger
}

// NewOptimizer creates an Optimizer backed by the given model client.
func NewOptimizer(store Store, client llm.Client, logger *slog.Logger) *Optimizer {
	return &Optimizer{
		store:  store,
		client: client,
		logger: logger.With("component", "optimizer"),
	}
}

// proposals mirrors the suggestions schema.
type proposals struct {
	MetaDescription   string     `json:"meta_description"`
	Keywords          []string   `json:"keywords"`
	FAQ               []faqEntry `json:"faq,omitempty"`
	TitleAlternatives []string   `json:"title_alternatives,omitempty"`
	Confidence        float64    `json:"confidence"`
}

type faqEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Suggest generates proposals for the work item's document and replaces
// any previously stored set. Returns the stored suggestions.
func (o *Optimizer) Suggest(ctx context.Context, workItemID uuid.UUID) ([]types.Suggestion, error) {
	doc, err := o.store.GetDocument(ctx, workItemID)
	if err != nil {
		return nil, fmt.Errorf("failed to load canonical document: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("work item %s has no canonical document", workItemID)
	}

	props, err := o.generate(ctx, doc)
	if err != nil {
		return nil, err
	}

	suggestions := buildSuggestions(workItemID, props, o.client.GetModel(llm.TierAdvanced))
	stored, err := o.store.ReplaceSuggestions(ctx, workItemID, suggestions)
	if err != nil {
		return nil, fmt.Errorf("failed to store suggestions: %w", err)
	}

	o.logger.Info("suggestions generated",
		"work_item", workItemID,
		"count", len(stored),
		"confidence", props.Confidence)
	return stored, nil
}

// generate makes exactly one model call and validates the payload against
// the suggestions schema before accepting it.
func (o *Optimizer) generate(ctx context.Context, doc *types.CanonicalDocument) (*proposals, error) {
	template := prompts.MustGet("optimization.json", "generate_suggestions")
	prompt := prompts.Format(template, map[string]string{
		"Title": doc.Title,
		"Body":  doc.Body,
	})

	response, err := o.client.GenerateJSON(ctx, prompt, llm.TierAdvanced)
	if err != nil {
		return nil, fmt.Errorf("suggestion generation failed: %w", err)
	}
	response = llm.CleanJSONBlock(response)

	if err := schemas.ValidatePayload(schemas.Suggestions, response); err != nil {
		return nil, fmt.Errorf("suggestion payload rejected: %w", err)
	}

	var props proposals
	if err := json.Unmarshal([]byte(response), &props); err != nil {
		return nil, fmt.Errorf("failed to parse suggestion payload: %w", err)
	}
	return &props, nil
}

// buildSuggestions flattens a proposal payload into suggestion rows. The
// meta description and keyword set become one row each; FAQ pairs and
// title alternatives become one row apiece.
func buildSuggestions(workItemID uuid.UUID, props *proposals, model string) []types.Suggestion {
	var out []types.Suggestion

	add := func(field types.SuggestionField, value string, items []string) {
		out = append(out, types.Suggestion{
			WorkItemID: workItemID,
			Field:      field,
			Value:      value,
			Items:      items,
			Provenance: types.ProvenanceAIGenerated,
			Confidence: props.Confidence,
			Model:      model,
		})
	}

	if desc := strings.TrimSpace(props.MetaDescription); desc != "" {
		add(types.SuggestionMetaDescription, desc, nil)
	}

	keywords := make([]string, 0, len(props.Keywords))
	for _, kw := range props.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) > 0 {
		add(types.SuggestionKeywords, "", keywords)
	}

	for _, pair := range props.FAQ {
		question := strings.TrimSpace(pair.Question)
		answer := strings.TrimSpace(pair.Answer)
		if question == "" || answer == "" {
			continue
		}
		add(types.SuggestionFAQ, question, []string{answer})
	}

	for _, alt := range props.TitleAlternatives {
		if alt = strings.TrimSpace(alt); alt != "" {
			add(types.SuggestionTitleAlternative, alt, nil)
		}
	}

	return out
}
