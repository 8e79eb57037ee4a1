// pkg/errors/analysis_errors.go
package errors

import (
	"fmt"
	"time"
)

// Kind classifies an analysis failure. All kinds are data conditions that
// components recover from locally by returning a failure result; none of
// them are expected to escape a component boundary as a raw error.
type Kind string

const (
	// KindEmptyInput is returned when a fit or analyze call receives zero rows.
	KindEmptyInput Kind = "empty_input"
	// KindMissingColumn is returned when a required structural column is
	// absent or unusable (e.g. every timestamp is the zero instant).
	KindMissingColumn Kind = "missing_column"
	// KindUntrainedModel is returned when a prediction is requested before
	// a model of the required type has been fit or loaded.
	KindUntrainedModel Kind = "untrained_model"
	// KindDegenerateColumn is returned when a numeric column is entirely
	// missing, making median imputation undefined.
	KindDegenerateColumn Kind = "degenerate_column"
	// KindInternal covers unexpected failures converted at the component
	// boundary into the structured failure shape.
	KindInternal Kind = "internal"
)

// AnalysisError represents a structured error from an analysis component.
type AnalysisError struct {
	Component string                 `json:"component"`
	Kind      Kind                   `json:"kind"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface.
func (ae *AnalysisError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", ae.Component, ae.Kind, ae.Message)
}

// Unwrap returns the underlying cause.
func (ae *AnalysisError) Unwrap() error {
	return ae.Cause
}

func newError(component string, kind Kind, message string) *AnalysisError {
	return &AnalysisError{
		Component: component,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewEmptyInput creates an error for a call that received no rows.
func NewEmptyInput(component string) *AnalysisError {
	return newError(component, KindEmptyInput, "no data provided")
}

// NewMissingColumn creates an error for an absent structural column.
func NewMissingColumn(component, column string) *AnalysisError {
	err := newError(component, KindMissingColumn,
		fmt.Sprintf("%s column is required", column))
	err.Details = map[string]interface{}{"column": column}
	return err
}

// NewUntrainedModel creates an error for a prediction without a fitted model.
func NewUntrainedModel(component string) *AnalysisError {
	return newError(component, KindUntrainedModel, "model not trained")
}

// NewDegenerateColumn creates an error for a numeric column with no
// present values.
func NewDegenerateColumn(component, column string) *AnalysisError {
	err := newError(component, KindDegenerateColumn,
		fmt.Sprintf("column %s has no present values; median undefined", column))
	err.Details = map[string]interface{}{"column": column}
	return err
}

// NewInternal wraps an unexpected failure into the structured shape.
func NewInternal(component string, cause error) *AnalysisError {
	err := newError(component, KindInternal, cause.Error())
	err.Cause = cause
	return err
}
