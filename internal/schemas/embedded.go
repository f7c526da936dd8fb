package schemas

import (
	"embed"
	"fmt"
)

//go:embed *.json
var schemaFiles embed.FS

// Embedded schema names used by the pipeline adapters.
const (
	DocumentStructure = "document_structure.json"
	DetectedIssues    = "issues.json"
	Suggestions       = "suggestions.json"
)

// Get returns the content of an embedded schema file.
func Get(name string) (string, error) {
	data, err := schemaFiles.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("failed to read embedded schema %s: %w", name, err)
	}
	return string(data), nil
}

// MustGet returns an embedded schema's content, panicking if it is missing.
// Use this for schemas that are required at initialization time.
func MustGet(name string) string {
	content, err := Get(name)
	if err != nil {
		panic(fmt.Sprintf("failed to load schema: %v", err))
	}
	return content
}

// ValidatePayload validates a JSON payload string against an embedded schema.
func ValidatePayload(schemaName, jsonContent string) error {
	schema, err := Get(schemaName)
	if err != nil {
		return err
	}
	return ValidateJSONString(schema, jsonContent)
}
