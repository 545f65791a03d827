package highlight

import (
	"strings"

	"github.com/muesli/termenv"
)

type mode int

const (
	modeText mode = iota
	modeCode
	modeFence
	modeBold
)

// Markdown styles inline code, fenced code blocks and bold text as they
// stream. Delimiters stay in the output. A trailing run of backticks or
// a lone '*' is held until the next piece decides what it opens.
type Markdown struct {
	plain Plain
	out   *termenv.Output
	mode  mode
	held  string
	code  termenv.Color
	fence termenv.Color
}

// NewMarkdown creates a Markdown filter that styles for out's profile.
func NewMarkdown(out *termenv.Output) *Markdown {
	return &Markdown{
		out:   out,
		code:  out.Color("6"),
		fence: out.Color("2"),
	}
}

func (m *Markdown) Feed(piece string) string {
	return m.render(m.held+m.plain.Feed(piece), false)
}

func (m *Markdown) Flush() string {
	s := m.render(m.held+m.plain.Flush(), true)
	m.mode = modeText
	return s
}

func (m *Markdown) render(s string, final bool) string {
	m.held = ""

	var out, run strings.Builder
	emit := func() {
		if run.Len() > 0 {
			out.WriteString(m.style(run.String()))
			run.Reset()
		}
	}
	enter := func(next mode, delim string) {
		emit()
		m.mode = next
		run.WriteString(delim)
	}
	leave := func(delim string) {
		run.WriteString(delim)
		emit()
		m.mode = modeText
	}

	for i := 0; i < len(s); {
		switch s[i] {
		case '`':
			n := 1
			for i+n < len(s) && s[i+n] == '`' {
				n++
			}
			if !final && i+n == len(s) && n < 3 {
				m.held = s[i:]
				i = len(s)
				continue
			}
			switch {
			case n >= 3 && m.mode == modeText:
				enter(modeFence, "```")
				i += 3
			case n >= 3 && m.mode == modeFence:
				leave("```")
				i += 3
			case m.mode == modeText:
				enter(modeCode, "`")
				i++
			case m.mode == modeCode:
				leave("`")
				i++
			default:
				run.WriteString(s[i : i+n])
				i += n
			}
		case '*':
			if m.mode != modeText && m.mode != modeBold {
				run.WriteByte('*')
				i++
				continue
			}
			if !final && i+1 == len(s) {
				m.held = s[i:]
				i = len(s)
				continue
			}
			if i+1 < len(s) && s[i+1] == '*' {
				if m.mode == modeText {
					enter(modeBold, "**")
				} else {
					leave("**")
				}
				i += 2
				continue
			}
			run.WriteByte('*')
			i++
		default:
			run.WriteByte(s[i])
			i++
		}
	}
	emit()

	return out.String()
}

func (m *Markdown) style(s string) string {
	switch m.mode {
	case modeCode:
		return m.out.String(s).Foreground(m.code).String()
	case modeFence:
		return m.out.String(s).Foreground(m.fence).String()
	case modeBold:
		return m.out.String(s).Bold().String()
	default:
		return s
	}
}
