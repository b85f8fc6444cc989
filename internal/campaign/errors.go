package campaign

import (
	"fmt"
	"strings"
)

type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationError lists every field-level problem found in a request.
type ValidationError struct {
	Issues []Issue
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		parts = append(parts, is.Path+": "+is.Message)
	}
	return "invalid payload: " + strings.Join(parts, "; ")
}

// TemplateRenderError reports a from-address that is not an email after
// substitution. It aborts the whole request.
type TemplateRenderError struct {
	RecipientID string
	Field       string
	Value       string
}

func (e *TemplateRenderError) Error() string {
	return fmt.Sprintf("rendered %s %q for recipient %s is not a valid email address", e.Field, e.Value, e.RecipientID)
}

type OversizedError struct {
	Limit     int
	Offenders []Offender
}

func (e *OversizedError) Error() string {
	return fmt.Sprintf("%d message(s) exceed the %d byte limit", len(e.Offenders), e.Limit)
}
