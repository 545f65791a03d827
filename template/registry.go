package template

import (
	"fmt"
	"slices"
	"sync"
)

type registry struct {
	formats map[string]FormatFunc
	mu      sync.RWMutex
}

var register = &registry{
	formats: make(map[string]FormatFunc),
}

// Register adds a named format to the global registry.
// Returns ErrAlreadyExists if the name is taken; use Replace to override
// a built-in.
func Register(name string, f FormatFunc) error {
	if name == "" {
		return ErrEmptyName
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	if _, exists := register.formats[name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, name)
	}

	register.formats[name] = f
	return nil
}

// Replace updates an existing format.
// Returns ErrUnknownTemplate if no format with the given name is registered.
func Replace(name string, f FormatFunc) error {
	if name == "" {
		return ErrEmptyName
	}

	register.mu.Lock()
	defer register.mu.Unlock()

	if _, exists := register.formats[name]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	register.formats[name] = f
	return nil
}

// Lookup retrieves a format by name.
func Lookup(name string) (FormatFunc, bool) {
	register.mu.RLock()
	defer register.mu.RUnlock()

	f, exists := register.formats[name]
	return f, exists
}

// Names returns the registered format names in sorted order.
func Names() []string {
	register.mu.RLock()
	defer register.mu.RUnlock()

	names := make([]string, 0, len(register.formats))
	for name := range register.formats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
