package session

import "errors"

var (
	// ErrSystemPrompt is returned by Bootstrap when the system prompt
	// cannot be rendered or committed.
	ErrSystemPrompt = errors.New("system prompt failed")

	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToForget = errors.New("nothing to forget")
	ErrEmptyStack      = errors.New("context stack is empty")
	ErrNoSnapshots     = errors.New("no snapshot store configured")

	// ErrImageHistory is returned when an operation would have to
	// re-evaluate tokens that stand in for an embedded image.
	ErrImageHistory = errors.New("context holds images that cannot be re-evaluated")
)
