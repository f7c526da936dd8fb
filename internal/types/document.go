// Package types provides type definitions for structured data used throughout the cms-automation system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"time"

	"github.com/google/uuid"
)

// Provenance records where a field value came from
type Provenance string

const (
	// ProvenanceExtracted means the value was parsed out of the source document
	ProvenanceExtracted Provenance = "extracted"
	// ProvenanceAIGenerated means the value was proposed by a model and not yet reviewed
	ProvenanceAIGenerated Provenance = "ai_generated"
	// ProvenanceUserEdited means an operator supplied or modified the value
	ProvenanceUserEdited Provenance = "user_edited"
)

// IsValid reports whether p is a known provenance tag
func (p Provenance) IsValid() bool {
	switch p {
	case ProvenanceExtracted, ProvenanceAIGenerated, ProvenanceUserEdited:
		return true
	}
	return false
}

// SourceDocument is the raw document handed to ingestion by a source gateway
type SourceDocument struct {
	SourceID    string    `json:"source_id"`
	RevisionTag string    `json:"revision_tag"`
	Title       string    `json:"title,omitempty"`
	Content     string    `json:"content"`
	FetchedAt   time.Time `json:"fetched_at"`
}

// MediaRef is one media asset referenced by a document body
type MediaRef struct {
	SourceURL string `json:"source_url"`
	LocalPath string `json:"local_path,omitempty"`
	AltText   string `json:"alt_text,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// TaggedField is a field value carrying its provenance
type TaggedField struct {
	Value      string     `json:"value"`
	Provenance Provenance `json:"provenance"`
}

// CanonicalDocument is the normalized, structured form of a source document.
// It is replaced wholesale on each successful parse; there is at most one
// per work item.
type CanonicalDocument struct {
	ID              uuid.UUID   `json:"id"`
	WorkItemID      uuid.UUID   `json:"work_item_id"`
	Title           string      `json:"title"`
	Subtitle        string      `json:"subtitle,omitempty"`
	Author          string      `json:"author,omitempty"`
	Body            string      `json:"body"`
	BodyHTML        string      `json:"body_html,omitempty"`
	Media           []MediaRef  `json:"media,omitempty"`
	MetaDescription TaggedField `json:"meta_description"`
	Keywords        []string    `json:"keywords,omitempty"`
	Parser          string      `json:"parser"`
	Confidence      float64     `json:"confidence"`
	PublishedURL    string      `json:"published_url,omitempty"`
	ParsedAt        time.Time   `json:"parsed_at"`
}

// SuggestionField names a document field a suggestion targets
type SuggestionField string

const (
	// SuggestionMetaDescription proposes a search snippet description
	SuggestionMetaDescription SuggestionField = "meta_description"
	// SuggestionKeywords proposes a keyword set
	SuggestionKeywords SuggestionField = "keywords"
	// SuggestionFAQ proposes question/answer pairs derived from the body
	SuggestionFAQ SuggestionField = "faq"
	// SuggestionTitleAlternative proposes an alternative headline
	SuggestionTitleAlternative SuggestionField = "title_alternative"
)

// Suggestion is one model-proposed optimization value. Suggestions are
// stored for operator review and never applied automatically.
type Suggestion struct {
	ID         uuid.UUID       `json:"id"`
	WorkItemID uuid.UUID       `json:"work_item_id"`
	Field      SuggestionField `json:"field"`
	Value      string          `json:"value"`
	Items      []string        `json:"items,omitempty"`
	Provenance Provenance      `json:"provenance"`
	Confidence float64         `json:"confidence"`
	Model      string          `json:"model,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}
