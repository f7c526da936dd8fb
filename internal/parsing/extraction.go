// Package parsing turns raw source documents into canonical documents. A
// structural heuristic pass runs first; results under a confidence floor
// are handed to the language model instead.
package parsing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kingofalbert/cms-automation-sub000/internal/types"
)

// Parser names recorded on canonical documents
const (
	ParserHeuristic = "heuristic"
	ParserLLM       = "llm"
)

// Extraction is the structural parse result before it becomes a canonical
// document.
type Extraction struct {
	Title           string
	Subtitle        string
	Author          string
	Body            string
	BodyHTML        string
	Media           []types.MediaRef
	MetaDescription string
	Keywords        []string
	Confidence      float64
}

// Validate checks the extraction holds the minimum a canonical document
// requires.
func (e *Extraction) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return &ValidationError{Field: "title", Message: "document has no title"}
	}
	if strings.TrimSpace(e.Body) == "" {
		return &ValidationError{Field: "body", Message: "document has no body"}
	}
	return nil
}

// Canonical converts the extraction into the canonical document persisted
// for a work item. Extracted metadata carries the extracted provenance
// tag; model-proposed values live in suggestions, never here.
func (e *Extraction) Canonical(workItemID uuid.UUID, parser string) *types.CanonicalDocument {
	return &types.CanonicalDocument{
		WorkItemID: workItemID,
		Title:      e.Title,
		Subtitle:   e.Subtitle,
		Author:     e.Author,
		Body:       e.Body,
		BodyHTML:   e.BodyHTML,
		Media:      e.Media,
		MetaDescription: types.TaggedField{
			Value:      e.MetaDescription,
			Provenance: types.ProvenanceExtracted,
		},
		Keywords:   e.Keywords,
		Parser:     parser,
		Confidence: e.Confidence,
		ParsedAt:   time.Now().UTC(),
	}
}
