package framework

import (
	"errors"
	"strings"
)

// AggregatedError collects errors from multiple runners.
type AggregatedError struct {
	Errors []error
}

// Error implements error.
func (e *AggregatedError) Error() string {
	switch len(e.Errors) {
	case 0:
		return ""
	case 1:
		return e.Errors[0].Error()
	}
	msgs := make([]string, 0, len(e.Errors)+1)
	msgs = append(msgs, "multiple errors:")
	for _, err := range e.Errors {
		msgs = append(msgs, "  "+err.Error())
	}
	return strings.Join(msgs, "\n")
}

// Unwrap makes errors.Is and errors.As look into every error.
func (e *AggregatedError) Unwrap() []error {
	return e.Errors
}

// Add appends errors, skipping nil and context cancellation.
func (e *AggregatedError) Add(errs ...error) *AggregatedError {
	for _, err := range errs {
		if err != nil && !errors.Is(err, errCanceled) {
			e.Errors = append(e.Errors, err)
		}
	}
	return e
}

// Aggregate returns nil when nothing was added.
func (e *AggregatedError) Aggregate() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}
