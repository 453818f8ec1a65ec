package router

import (
	"errors"
	"fmt"
)

// Error kinds carried by RouterError.
var (
	ErrValidation = errors.New("invalid request")
	ErrRetrieval  = errors.New("retrieval failed")
	ErrGeneration = errors.New("generation failed")
)

// RouterError reports which branch failed and why. errors.Is matches both
// Kind and the underlying cause.
type RouterError struct {
	Branch Branch
	Kind   error
	Err    error
}

func (e *RouterError) Error() string {
	if e.Branch == "" {
		return fmt.Sprintf("%v: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s branch: %v: %v", e.Branch, e.Kind, e.Err)
}

func (e *RouterError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

func newError(branch Branch, kind, err error) *RouterError {
	return &RouterError{Branch: branch, Kind: kind, Err: err}
}

// IsClientError reports whether err was caused by the request itself.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation)
}
