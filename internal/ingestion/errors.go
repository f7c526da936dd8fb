package ingestion

import "fmt"

// InvalidDocumentError reports a source document that failed validation.
// Validation runs before any write, so a rejected document leaves no
// partial work item behind.
type InvalidDocumentError struct {
	Field   string
	Message string
}

func (e *InvalidDocumentError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid document: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid document: %s", e.Message)
}
