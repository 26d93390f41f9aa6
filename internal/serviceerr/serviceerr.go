// Package serviceerr carries the operation.reason codes attached to service failures.
package serviceerr

import (
	"errors"
	"fmt"
)

// Error wraps an underlying cause with a stable machine readable code.
type Error struct {
	code string
	err  error
}

func (e *Error) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *Error) Unwrap() error {
	return e.err
}

// Code returns the operation.reason identifier.
func (e *Error) Code() string {
	return e.code
}

// New builds an Error with code "<operation>.<reason>".
func New(operation, reason string, cause error) error {
	return &Error{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// CodeOf extracts the code from the first Error in the chain.
func CodeOf(err error) (string, bool) {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr.Code(), true
	}
	return "", false
}
