// Package template renders conversation turns into engine prompt text.
//
// Rendering follows a bounded two-pass protocol. The formatter first
// renders into a small fixed buffer and reports the size it needs. Output
// that fits is returned directly; larger output, up to a hard maximum, is
// rendered a second time into a buffer of exactly the reported size, and
// the two reported sizes must agree. Output above the maximum is refused
// before anything is allocated for it, which bounds memory against
// arbitrarily long histories.
//
//	r := template.NewRenderer(template.NewBuiltin(model.ChatTemplate()), nil)
//	text, err := r.Render("", protocol.InitMessages(protocol.RoleSystem, "You are terse."), false)
package template

import (
	"fmt"

	"github.com/tailored-agentic-units/llamachat/core/protocol"
)

// Formatter is the template-formatting collaborator. Apply renders
// messages with the named or inline template tmpl ("" selects the model
// default), writes at most len(buf) bytes into buf, and returns the total
// number of bytes the complete rendering needs.
//
// Apply must be deterministic: the same inputs always report the same
// size and produce the same bytes.
type Formatter interface {
	Apply(tmpl string, messages []protocol.Message, addAssistant bool, buf []byte) (int, error)
}

// FormatterFunc adapts a function to the Formatter interface.
type FormatterFunc func(tmpl string, messages []protocol.Message, addAssistant bool, buf []byte) (int, error)

func (f FormatterFunc) Apply(tmpl string, messages []protocol.Message, addAssistant bool, buf []byte) (int, error) {
	return f(tmpl, messages, addAssistant, buf)
}

// Renderer applies the two-pass sizing protocol on top of a Formatter.
// A Renderer holds no per-call state and may be shared.
type Renderer struct {
	formatter   Formatter
	initialSize int
	maxSize     int
}

// NewRenderer creates a Renderer. A nil cfg selects DefaultConfig limits.
func NewRenderer(formatter Formatter, cfg *Config) *Renderer {
	limits := DefaultConfig()
	if cfg != nil {
		limits.Merge(cfg)
	}
	// Output that fits the probe must still respect the ceiling.
	limits.InitialSize = min(limits.InitialSize, limits.MaxSize)
	return &Renderer{
		formatter:   formatter,
		initialSize: limits.InitialSize,
		maxSize:     limits.MaxSize,
	}
}

// MaxSize returns the largest rendering the Renderer accepts, in bytes.
func (r *Renderer) MaxSize() int {
	return r.maxSize
}

// Render turns messages into prompt text. On failure no partial text is
// returned. Size failures are reported as *TooLargeError or
// *SizeMismatchError; formatter failures wrap ErrApply.
func (r *Renderer) Render(tmpl string, messages []protocol.Message, addAssistant bool) (string, error) {
	if len(messages) == 0 {
		return "", ErrNoMessages
	}

	probe := make([]byte, r.initialSize)
	required, err := r.apply(tmpl, messages, addAssistant, probe)
	if err != nil {
		return "", err
	}

	if required <= len(probe) {
		return string(probe[:required]), nil
	}

	if required > r.maxSize {
		return "", &TooLargeError{Required: required, Max: r.maxSize}
	}

	buf := make([]byte, required)
	actual, err := r.apply(tmpl, messages, addAssistant, buf)
	if err != nil {
		return "", err
	}
	if actual != required {
		return "", &SizeMismatchError{Expected: required, Actual: actual}
	}

	return string(buf), nil
}

// apply calls the formatter, converting panics and negative sizes into
// ErrApply so a misbehaving formatter can never take the session down.
func (r *Renderer) apply(tmpl string, messages []protocol.Message, addAssistant bool, buf []byte) (n int, err error) {
	defer func() {
		if v := recover(); v != nil {
			n, err = 0, fmt.Errorf("%w: formatter panicked: %v", ErrApply, v)
		}
	}()

	n, err = r.formatter.Apply(tmpl, messages, addAssistant, buf)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrApply, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: formatter reported size %d", ErrApply, n)
	}
	return n, nil
}
