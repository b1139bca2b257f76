package topology

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ErrorKind classifies a topology validation error.
type ErrorKind string

const (
	// KindUnknownImplementation marks an entry naming an implementation the
	// registry does not contain.
	KindUnknownImplementation ErrorKind = "unknown_implementation"

	// KindSchemaViolation marks a configuration field that is missing, of
	// the wrong type, or unrecognized.
	KindSchemaViolation ErrorKind = "schema_violation"

	// KindDuplicateSlot marks two sibling modules sharing a slot address.
	KindDuplicateSlot ErrorKind = "duplicate_slot"
)

// ValidationError is one structured, path-annotated problem found during
// topology validation. The core never formats human prose beyond Message;
// user-facing layers render these records.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	Path    string    `json:"path"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Path, e.Message)
}

// ValidationErrors accumulates every problem found in one validation pass.
// One invalid entry never halts validation of its siblings; the whole list
// is returned together so a user can fix every problem in one edit cycle.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

// NewValidationErrors creates an empty accumulator.
func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{}
}

// Add appends a validation error.
func (ve *ValidationErrors) Add(kind ErrorKind, path, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Kind: kind, Path: path, Message: message})
}

// HasErrors returns true if any error was recorded.
func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

// Count returns the number of recorded errors.
func (ve *ValidationErrors) Count() int {
	return len(ve.Errors)
}

// ByKind returns the recorded errors of one kind, in recording order.
func (ve *ValidationErrors) ByKind(kind ErrorKind) []ValidationError {
	var out []ValidationError
	for _, e := range ve.Errors {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Error implements the error interface.
func (ve *ValidationErrors) Error() string {
	if !ve.HasErrors() {
		return "topology validation failed"
	}
	lines := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		lines[i] = "  - " + e.Error()
	}
	if len(lines) == 1 {
		return "topology validation failed: " + strings.TrimPrefix(lines[0], "  - ")
	}
	return fmt.Sprintf("topology validation failed:\n%s", strings.Join(lines, "\n"))
}

// MarshalJSON implements json.Marshaler for API error payloads.
func (ve *ValidationErrors) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Error  string            `json:"error"`
		Errors []ValidationError `json:"errors"`
	}{
		Error:  "topology_validation_failed",
		Errors: ve.Errors,
	})
}
