package credentials

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")
	// ErrStoreFailed is the only error a caller sees when sealing fails.
	ErrStoreFailed = errors.New("failed to store credential")
	// ErrRetrieveFailed is the only error a caller sees when opening a sealed
	// credential fails, whatever the underlying cause.
	ErrRetrieveFailed = errors.New("failed to retrieve credential")
)

// ValidationError describes a rejected name or value.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}
