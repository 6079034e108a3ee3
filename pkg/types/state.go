package types

// DocumentState is the derived processing state of a vault document.
type DocumentState string

const (
	StateMissing         DocumentState = "missing"
	StateModified        DocumentState = "modified"
	StateSchemaMismatch  DocumentState = "schema-mismatch"
	StateIncomplete      DocumentState = "incomplete"
	StateMetadataMissing DocumentState = "metadata-missing"
	StateEmpty           DocumentState = "empty"
	StateUpToDate        DocumentState = "up-to-date"
	StateExcluded        DocumentState = "excluded"
	StateFailed          DocumentState = "failed"
)

// NeedsProcessing reports whether the document must go through the processor.
func (s DocumentState) NeedsProcessing() bool {
	switch s {
	case StateMissing, StateModified, StateSchemaMismatch, StateIncomplete, StateMetadataMissing:
		return true
	default:
		return false
	}
}
