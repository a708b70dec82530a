package libcapsule

import (
	"errors"
	"fmt"
)

var (
	ErrExist           = errors.New("capsule already exists")
	ErrNotExist        = errors.New("capsule does not exist")
	ErrNoCapsuleLinked = errors.New("no capsule linked into the current directory or its parents")
	ErrExportExist     = errors.New("export already exists")
	ErrNotPrivileged   = errors.New("privileged operation requires elevated rights")
)

// ValidationError reports a malformed name, a missing required argument or
// an unknown option.
type ValidationError struct {
	details string
}

// NewValidationError formats a ValidationError.
func NewValidationError(format string, a ...any) error {
	return &ValidationError{details: fmt.Sprintf(format, a...)}
}

func (e *ValidationError) Error() string {
	return "invalid argument: " + e.details
}

// ContainmentError reports a working directory outside of the original
// caller's home directory.
type ContainmentError struct {
	Dir  string
	Home string
}

func (e *ContainmentError) Error() string {
	return fmt.Sprintf("working directory %s is not within home directory %s", e.Dir, e.Home)
}
