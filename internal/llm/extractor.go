// Package llm - extractor.go provides generic LLM-based structured extraction.
package llm

import (
	"fmt"
	"strings"
)

// ExtractionSchema defines the structure for LLM-based content extraction.
// It provides a reusable way to define what information to extract from text.
type ExtractionSchema struct {
	Name        string        // Schema name (e.g., "DocumentStructure")
	Description string        // System prompt preamble describing the extraction task
	Fields      []SchemaField // Expected output fields
}

// SchemaField defines a single field in the extraction output.
type SchemaField struct {
	Name        string // JSON field name
	Type        string // Type hint: "string", "[]string", "map[string]string"
	Description string // Description for the LLM
	Required    bool   // Whether this field is required
}

// BuildExtractionPrompt constructs the LLM prompt from schema and input text.
func BuildExtractionPrompt(schema ExtractionSchema, inputText string) string {
	var sb strings.Builder

	// System description
	sb.WriteString(schema.Description)
	sb.WriteString("\n\n")

	// Output schema
	sb.WriteString("Return ONLY valid JSON matching this exact structure:\n{\n")
	for i, field := range schema.Fields {
		typeHint := field.Type
		if typeHint == "" {
			typeHint = "string"
		}
		requiredHint := ""
		if field.Required {
			requiredHint = " (required)"
		}
		sb.WriteString(fmt.Sprintf("  \"%s\": %s%s", field.Name, typeHint, requiredHint))
		if field.Description != "" {
			sb.WriteString(fmt.Sprintf(" // %s", field.Description))
		}
		if i < len(schema.Fields)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}\n\n")

	// Instructions
	sb.WriteString("IMPORTANT:\n")
	sb.WriteString("- Extract information directly from the text, do not invent or summarize.\n")
	sb.WriteString("- Return ONLY the JSON object, no markdown, no explanation, no code blocks.\n\n")

	// Input text
	sb.WriteString("Input text:\n\"\"\"\n")
	sb.WriteString(inputText)
	sb.WriteString("\n\"\"\"\n")

	return sb.String()
}

// --- Predefined Schemas ---

// DocumentStructureSchema returns the extraction schema for source documents.
// Extracts title components, author, body, and media references when the
// heuristic parser cannot produce a confident result.
func DocumentStructureSchema() ExtractionSchema {
	return ExtractionSchema{
		Name: "DocumentStructure",
		Description: `You are an expert content editor. COPY TEXT VERBATIM - do not paraphrase, summarize, or reword.
Your task is to segment a raw article document into its structural parts.
IMPORTANT: Preserve the exact wording from the original text.
Goal: Identify the title, subtitle, author byline, body text, and referenced media.
EXCLUDE: Navigation chrome, cookie banners, advertising blocks, comment sections.`,
		Fields: []SchemaField{
			{
				Name:        "title",
				Type:        "\"string\"",
				Description: "Main headline - copy verbatim",
				Required:    true,
			},
			{
				Name:        "subtitle",
				Type:        "\"string\"",
				Description: "Secondary headline or standfirst if present - copy verbatim",
				Required:    false,
			},
			{
				Name:        "author",
				Type:        "\"string\"",
				Description: "Author byline without prefixes like 'By'",
				Required:    false,
			},
			{
				Name:        "body",
				Type:        "\"string\"",
				Description: "Full article body text with paragraphs separated by blank lines - copy verbatim",
				Required:    true,
			},
			{
				Name:        "media",
				Type:        "[{\"source_url\": \"string\", \"alt_text\": \"string\", \"caption\": \"string\"}]",
				Description: "Images and embedded media referenced by the body",
				Required:    false,
			},
			{
				Name:        "meta_description",
				Type:        "\"string\"",
				Description: "Existing meta description if the document declares one, empty otherwise",
				Required:    false,
			},
			{
				Name:        "keywords",
				Type:        "[\"string\"]",
				Description: "Existing keyword tags if the document declares them",
				Required:    false,
			},
		},
	}
}
