package window

import (
	"errors"
	"fmt"
)

// Sentinel errors for context management.
var (
	ErrInterrupted     = errors.New("commit interrupted")
	ErrCheckpointOrder = errors.New("checkpoint must exceed the previous checkpoint")
	ErrRewindRange     = errors.New("rewind target out of range")
)

// OverflowError reports a commit that does not fit in the context window.
// Err holds the engine failure when the engine, rather than the
// precheck, rejected the tokens. Requested is zero for an image whose
// size the engine did not report.
type OverflowError struct {
	Used      int
	Requested int
	Capacity  int
	Err       error
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("out of context: %d tokens used, %d requested, capacity %d; "+
		"try /undo, /forget or /clear", e.Used, e.Requested, e.Capacity)
}

func (e *OverflowError) Unwrap() error {
	return e.Err
}
