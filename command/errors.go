package command

import "errors"

// Sentinel errors for the command registry.
var (
	ErrNotFound      = errors.New("unknown command")
	ErrAlreadyExists = errors.New("command already registered")
	ErrEmptyName     = errors.New("command name is empty")
	ErrUsage         = errors.New("invalid arguments")
)
