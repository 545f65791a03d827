package kernel

import (
	"errors"

	"github.com/tailored-agentic-units/llamachat/session"
)

var (
	// ErrModelInit is returned by New when the engine cannot be reached or
	// describes itself inconsistently.
	ErrModelInit = errors.New("model initialization failed")

	// ErrContextInit is returned by New when the engine offers no usable
	// context window.
	ErrContextInit = errors.New("context initialization failed")

	// ErrVisionInit is returned by New when vision was required but the
	// engine cannot embed images.
	ErrVisionInit = errors.New("vision initialization failed")
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitFailure      = 1
	ExitModelInit    = 2
	ExitContextInit  = 3
	ExitVisionInit   = 4
	ExitSystemPrompt = 6
)

// ExitCode maps an error returned by New or Run to the process exit code.
// Errors without a dedicated code, including configuration and flag
// errors, map to ExitFailure.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrModelInit):
		return ExitModelInit
	case errors.Is(err, ErrContextInit):
		return ExitContextInit
	case errors.Is(err, ErrVisionInit):
		return ExitVisionInit
	case errors.Is(err, session.ErrSystemPrompt):
		return ExitSystemPrompt
	default:
		return ExitFailure
	}
}
