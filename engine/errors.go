package engine

import "errors"

// Sentinel errors shared by engine implementations.
var (
	ErrDecode        = errors.New("decode failed")
	ErrContextFull   = errors.New("context window full")
	ErrVisionMissing = errors.New("no vision model loaded")
	ErrClosed        = errors.New("engine closed")
)
