package template

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	gotemplate "text/template"

	"github.com/tailored-agentic-units/llamachat/core/protocol"
)

// Builtin is the default Formatter. A template argument is resolved in
// order: "" selects the format detected from the model's embedded
// template, a registered name selects that format, and anything
// containing "{{" is parsed as a text/template source.
//
// Inline templates execute against a value with fields Messages
// ([]protocol.Message) and AddAssistant (bool) and may call trim.
type Builtin struct {
	model string

	mu     sync.Mutex
	parsed map[string]*gotemplate.Template
}

// NewBuiltin creates a Builtin formatter. modelTemplate is the template
// source embedded in the model, possibly empty.
func NewBuiltin(modelTemplate string) *Builtin {
	return &Builtin{
		model:  modelTemplate,
		parsed: make(map[string]*gotemplate.Template),
	}
}

// Default returns the format name used for an empty template argument.
func (f *Builtin) Default() string {
	if name := Detect(f.model); name != "" {
		return name
	}
	return ChatML
}

func (f *Builtin) Apply(tmpl string, messages []protocol.Message, addAssistant bool, buf []byte) (int, error) {
	if tmpl == "" {
		tmpl = f.Default()
	}

	var out []byte
	if format, ok := Lookup(tmpl); ok {
		var b strings.Builder
		format(&b, messages, addAssistant)
		out = []byte(b.String())
	} else {
		t, err := f.parse(tmpl)
		if err != nil {
			return 0, err
		}
		var b bytes.Buffer
		data := struct {
			Messages     []protocol.Message
			AddAssistant bool
		}{messages, addAssistant}
		if err := t.Execute(&b, data); err != nil {
			return 0, err
		}
		out = b.Bytes()
	}

	copy(buf, out)
	return len(out), nil
}

func (f *Builtin) parse(source string) (*gotemplate.Template, error) {
	if !strings.Contains(source, "{{") {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, source)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if t, ok := f.parsed[source]; ok {
		return t, nil
	}

	t, err := gotemplate.New("chat").
		Funcs(gotemplate.FuncMap{"trim": strings.TrimSpace}).
		Option("missingkey=error").
		Parse(source)
	if err != nil {
		return nil, err
	}
	f.parsed[source] = t
	return t, nil
}
