// Package terminal is the interactive surface of a chat session: line
// input with command completion, transient status text, and styled
// output for prompts, notes and errors.
//
// When input is a terminal, lines are read through an x/term line editor
// with the terminal in raw mode for the duration of the read only, so
// Ctrl-C during generation still raises SIGINT. Otherwise input is read
// line by line from the stream.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/tailored-agentic-units/llamachat/observability"
)

// Completer returns the candidates that extend prefix.
type Completer func(prefix string) []string

// Option configures a Console.
type Option func(*Console)

// WithCompleter enables tab completion of slash commands.
func WithCompleter(c Completer) Option {
	return func(con *Console) { con.complete = c }
}

// WithProfile forces a colour profile instead of detecting one from out.
func WithProfile(p termenv.Profile) Option {
	return func(con *Console) { con.profile = &p }
}

// Console reads user input and writes session output.
type Console struct {
	in       io.Reader
	out      io.Writer
	output   *termenv.Output
	profile  *termenv.Profile
	complete Completer

	fd      int
	tty     bool
	editor  *term.Terminal
	scanner *bufio.Scanner
	status  bool
}

// New creates a Console reading from in and writing to out.
func New(in io.Reader, out io.Writer, opts ...Option) *Console {
	c := &Console{in: in, out: out}
	for _, opt := range opts {
		opt(c)
	}

	var outputOpts []termenv.OutputOption
	if c.profile != nil {
		outputOpts = append(outputOpts, termenv.WithProfile(*c.profile))
	}
	c.output = termenv.NewOutput(out, outputOpts...)

	if f, ok := in.(interface{ Fd() uintptr }); ok && observability.IsTerminal(in) && observability.IsTerminal(out) {
		c.fd = int(f.Fd())
		c.tty = true
		c.editor = term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{in, out}, "")
		c.editor.AutoCompleteCallback = c.autocomplete
	} else {
		c.scanner = bufio.NewScanner(in)
		c.scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	}
	return c
}

// Output returns the styled output used for model text.
func (c *Console) Output() *termenv.Output {
	return c.output
}

// Interactive reports whether input and output are a terminal.
func (c *Console) Interactive() bool {
	return c.tty
}

// Write writes p to the output unchanged.
func (c *Console) Write(p []byte) (int, error) {
	return c.out.Write(p)
}

// ReadLine reads one line of input after printing prompt. It returns
// io.EOF when input is exhausted.
func (c *Console) ReadLine(prompt string) (string, error) {
	c.Clear()

	if !c.tty {
		if prompt != "" {
			fmt.Fprint(c.out, prompt)
		}
		if !c.scanner.Scan() {
			if err := c.scanner.Err(); err != nil {
				return "", err
			}
			return "", io.EOF
		}
		return strings.TrimSuffix(c.scanner.Text(), "\r"), nil
	}

	state, err := term.MakeRaw(c.fd)
	if err != nil {
		return "", fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(c.fd, state)

	if w, h, err := term.GetSize(c.fd); err == nil {
		c.editor.SetSize(w, h)
	}
	c.editor.SetPrompt(c.output.String(prompt).Bold().String())
	return c.editor.ReadLine()
}

// ReadMessage reads one user message. A line starting with """ opens a
// block that continues until a line ending with """; the delimiters are
// removed and the lines joined with newlines.
func (c *Console) ReadMessage(prompt, continuation string) (string, error) {
	line, err := c.ReadLine(prompt)
	if err != nil {
		return "", err
	}

	rest, ok := strings.CutPrefix(line, `"""`)
	if !ok {
		return line, nil
	}
	if body, ok := strings.CutSuffix(rest, `"""`); ok && rest != "" {
		return body, nil
	}

	var lines []string
	if rest != "" {
		lines = append(lines, rest)
	}
	for {
		next, err := c.ReadLine(continuation)
		if errors.Is(err, io.EOF) {
			return strings.Join(lines, "\n"), nil
		}
		if err != nil {
			return "", err
		}
		if body, ok := strings.CutSuffix(next, `"""`); ok {
			lines = append(lines, body)
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, next)
	}
}

// Show displays text on the current line, replacing any previous status.
// It satisfies window.Status. Nothing is shown when output is not a
// terminal.
func (c *Console) Show(text string) {
	if !c.tty {
		return
	}
	width := 80
	if w, _, err := term.GetSize(c.fd); err == nil && w > 1 {
		width = w
	}
	text = ansi.Truncate(text, width-1, "…")
	fmt.Fprint(c.out, "\r"+ansi.EraseEntireLine+c.output.String(text).Faint().String())
	c.status = true
}

// Clear removes the status line, if one is shown.
func (c *Console) Clear() {
	if !c.status {
		return
	}
	fmt.Fprint(c.out, "\r"+ansi.EraseEntireLine)
	c.status = false
}

// Note prints an informational line.
func (c *Console) Note(format string, args ...any) {
	c.Clear()
	fmt.Fprintln(c.out, c.output.String(fmt.Sprintf(format, args...)).Faint().String())
}

// Print prints a plain line.
func (c *Console) Print(text string) {
	c.Clear()
	fmt.Fprintln(c.out, text)
}

// Error prints err in bright red.
func (c *Console) Error(err error) {
	c.Clear()
	fmt.Fprintln(c.out, c.output.String(err.Error()).Foreground(c.output.Color("9")).String())
}

func (c *Console) autocomplete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || c.complete == nil {
		return "", 0, false
	}
	return Complete(line, pos, c.complete)
}

// Complete extends the word before pos using candidates. Only a leading
// slash command is completed. A single match is completed with a
// trailing space; several matches are extended to their common prefix.
func Complete(line string, pos int, candidates Completer) (string, int, bool) {
	head := line[:pos]
	if !strings.HasPrefix(head, "/") || strings.ContainsAny(head, " \t") {
		return "", 0, false
	}

	matches := candidates(head)
	switch len(matches) {
	case 0:
		return "", 0, false
	case 1:
		done := matches[0] + " "
		return done + strings.TrimLeft(line[pos:], " "), len(done), true
	}

	prefix := matches[0]
	for _, m := range matches[1:] {
		n := 0
		for n < len(prefix) && n < len(m) && prefix[n] == m[n] {
			n++
		}
		prefix = prefix[:n]
	}
	if len(prefix) <= len(head) {
		return "", 0, false
	}
	return prefix + line[pos:], len(prefix), true
}
