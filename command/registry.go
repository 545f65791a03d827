// Package command implements the slash-command registry of the chat REPL.
//
// A line starting with '/' is a command: the first field names it and the
// remaining fields are its arguments. Commands never reach the engine.
package command

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Handler runs a command with its whitespace-separated arguments.
type Handler func(ctx context.Context, args []string) error

// Command describes a registered command for help and completion.
type Command struct {
	Name        string
	Usage       string
	Description string
}

type entry struct {
	command Command
	handler Handler
}

// Registry maps command names to handlers. Safe for concurrent use.
type Registry struct {
	entries map[string]entry
	mu      sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]entry)}
}

// IsCommand reports whether line is a slash command.
func IsCommand(line string) bool {
	return strings.HasPrefix(line, "/")
}

// Register adds a command.
// Returns ErrAlreadyExists if a command with the same name is registered;
// use Replace to update an existing handler.
func (r *Registry) Register(cmd Command, handler Handler) error {
	if cmd.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cmd.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, cmd.Name)
	}

	r.entries[cmd.Name] = entry{command: cmd, handler: handler}
	return nil
}

// Replace updates an existing command's description and handler.
// Returns ErrNotFound if no command with the given name is registered.
func (r *Registry) Replace(cmd Command, handler Handler) error {
	if cmd.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[cmd.Name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, cmd.Name)
	}

	r.entries[cmd.Name] = entry{command: cmd, handler: handler}
	return nil
}

// Get retrieves a handler by command name.
func (r *Registry) Get(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, false
	}
	return e.handler, true
}

// List returns every registered command sorted by name.
func (r *Registry) List() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]Command, 0, len(r.entries))
	for _, e := range r.entries {
		cmds = append(cmds, e.command)
	}
	slices.SortFunc(cmds, func(a, b Command) int { return strings.Compare(a.Name, b.Name) })
	return cmds
}

// Complete returns the sorted names of commands starting with prefix,
// each with its leading '/'.
func (r *Registry) Complete(prefix string) []string {
	prefix = strings.TrimPrefix(prefix, "/")

	var matches []string
	for _, cmd := range r.List() {
		if strings.HasPrefix(cmd.Name, prefix) {
			matches = append(matches, "/"+cmd.Name)
		}
	}
	return matches
}

// Execute parses line and dispatches it to the named handler.
// Returns ErrNotFound for unknown commands. Handler errors are wrapped
// with the command name.
func (r *Registry) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(strings.TrimPrefix(line, "/"))
	if len(fields) == 0 {
		return fmt.Errorf("%w: /", ErrNotFound)
	}
	name, args := fields[0], fields[1:]

	r.mu.RLock()
	e, exists := r.entries[name]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("%w: /%s", ErrNotFound, name)
	}

	if err := e.handler(ctx, args); err != nil {
		return fmt.Errorf("/%s: %w", name, err)
	}
	return nil
}

// Help renders a usage table of every command.
func (r *Registry) Help() string {
	cmds := r.List()
	width := 0
	for _, cmd := range cmds {
		width = max(width, len(usage(cmd)))
	}

	var b strings.Builder
	for _, cmd := range cmds {
		fmt.Fprintf(&b, "%-*s  %s\n", width, usage(cmd), cmd.Description)
	}
	return b.String()
}

func usage(cmd Command) string {
	if cmd.Usage == "" {
		return "/" + cmd.Name
	}
	return "/" + cmd.Name + " " + cmd.Usage
}
