package memory

import "errors"

// Sentinel errors for store and snapshot operations.
var (
	ErrKeyNotFound = errors.New("key not found")
	ErrInvalidKey  = errors.New("invalid key")
	ErrInvalidName = errors.New("invalid snapshot name")
	ErrLoadFailed  = errors.New("load failed")
	ErrSaveFailed  = errors.New("save failed")
	ErrCorrupt     = errors.New("corrupt snapshot")
	ErrVersion     = errors.New("unsupported snapshot version")
)
