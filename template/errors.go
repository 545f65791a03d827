package template

import (
	"errors"
	"fmt"
)

// Sentinel errors for rendering and the format registry.
var (
	ErrNoMessages      = errors.New("no messages provided")
	ErrApply           = errors.New("failed to apply chat template")
	ErrUnknownTemplate = errors.New("unknown chat template")
	ErrAlreadyExists   = errors.New("chat template already registered")
	ErrEmptyName       = errors.New("chat template name is empty")
)

// TooLargeError reports a rendering that exceeds the configured maximum.
type TooLargeError struct {
	Required int
	Max      int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("chat template too large: %d bytes (max: %d bytes); "+
		"consider reducing message history or message length", e.Required, e.Max)
}

// SizeMismatchError reports a formatter whose second pass disagreed with
// the size it reported on the first.
type SizeMismatchError struct {
	Expected int
	Actual   int
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("chat template size mismatch: expected %d, got %d", e.Expected, e.Actual)
}
