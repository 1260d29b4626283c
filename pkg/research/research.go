// Package research defines the generation capability the engine calls to
// produce report content, and the failure taxonomy that drives retries.
package research

import (
	"context"
	"errors"
	"fmt"

	"github.com/briefwell/briefwell/pkg/models"
)

// Request is the input to the research capability.
type Request struct {
	Topics   []string
	Keywords []string
	// Window describes the period the report covers, e.g. "daily" or the
	// period key itself. Free-form for the backend prompt.
	Window string
}

// Researcher produces free-form report text for a request. Implementations
// make exactly one attempt; retry orchestration lives in the engine so
// attempt counts stay visible on the execution record.
type Researcher interface {
	Research(ctx context.Context, req Request) (string, error)
}

// Error is a research failure classified for the retry path.
type Error struct {
	Kind models.ErrorKind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("research failed (%s): %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewTransientError wraps a retryable failure (timeout, rate limit,
// upstream 5xx).
func NewTransientError(err error) *Error {
	return &Error{Kind: models.ErrorKindTransient, Err: err}
}

// NewPermanentError wraps a terminal failure (invalid input, content-policy
// rejection).
func NewPermanentError(err error) *Error {
	return &Error{Kind: models.ErrorKindPermanent, Err: err}
}

// Classify extracts the error kind from a research failure. Unclassified
// errors are treated as transient so an unknown blip gets the benefit of the
// retry budget.
func Classify(err error) models.ErrorKind {
	var researchErr *Error
	if errors.As(err, &researchErr) {
		return researchErr.Kind
	}

	return models.ErrorKindTransient
}
