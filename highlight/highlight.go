// Package highlight filters generated text on its way to the terminal.
//
// Pieces arrive one token at a time and can end anywhere: inside a UTF-8
// rune, inside an escape sequence the model emitted, or on a markdown
// delimiter that is only meaningful once the next piece arrives. A Filter
// holds such fragments back until they resolve and returns only text that
// is safe to print now. Every styled run a Filter returns carries its own
// reset, so styling never bleeds into the prompt or the next turn.
package highlight

import (
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
)

// Filter transforms a stream of pieces into printable text.
type Filter interface {
	// Feed accepts the next piece and returns the text ready to print.
	Feed(piece string) string
	// Flush returns everything still held back and resets the filter.
	Flush() string
}

// maxEscape bounds how long an unterminated escape sequence is held.
const maxEscape = 256

// Plain passes text through unstyled. It strips escape sequences the
// model emits and never splits a rune.
type Plain struct {
	carry string
}

// NewPlain creates a Plain filter.
func NewPlain() *Plain {
	return &Plain{}
}

func (p *Plain) Feed(piece string) string {
	s := p.carry + piece
	cut := safePrefix(s)
	p.carry = s[cut:]
	return ansi.Strip(s[:cut])
}

func (p *Plain) Flush() string {
	s := p.carry
	p.carry = ""
	return ansi.Strip(strings.ToValidUTF8(s, ""))
}

// safePrefix returns the length of the longest prefix of s that ends
// neither inside a rune nor inside an escape sequence.
func safePrefix(s string) int {
	cut := len(s)
	for i := len(s) - 1; i >= 0 && i >= len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				cut = i
			}
			break
		}
	}

	if e := strings.LastIndexByte(s[:cut], '\x1b'); e >= 0 && cut-e <= maxEscape && !escapeComplete(s[e:cut]) {
		cut = e
	}
	return cut
}

// escapeComplete reports whether seq, which starts with ESC, holds a
// whole escape sequence.
func escapeComplete(seq string) bool {
	if len(seq) < 2 {
		return false
	}
	switch seq[1] {
	case '[':
		for i := 2; i < len(seq); i++ {
			if seq[i] >= 0x40 && seq[i] <= 0x7e {
				return true
			}
		}
		return false
	case ']', 'P', '_', '^':
		return strings.IndexByte(seq[2:], '\a') >= 0 || strings.Contains(seq[2:], "\x1b\\")
	default:
		return true
	}
}
