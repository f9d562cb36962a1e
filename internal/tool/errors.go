package tool

import (
	"errors"
	"fmt"
)

// Sentinel errors for typed error checking.
var (
	ErrTimeout        = errors.New("invocation timed out")
	ErrToolNotFound   = errors.New("import tool not found")
	ErrInvalidRequest = errors.New("invalid invocation request")
)

// InvocationError wraps errors with invocation context.
type InvocationError struct {
	File string
	Op   string // The operation that failed
	Err  error
}

func (e *InvocationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("invoking on %s: %s: %s", e.File, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
