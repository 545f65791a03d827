// Package window owns the tokens committed to the engine's context window
// and the checkpoints used to rewind them.
//
// State is the bookkeeping: every token the engine has evaluated, in
// order, plus a stack of saved prefix lengths. Manager is the only
// writer. It commits tokens to the engine in bounded chunks, refuses
// commits that cannot fit, and rewinds engine and State together so the
// two never disagree about what the context holds.
package window

import (
	"fmt"
	"slices"

	"github.com/tailored-agentic-units/llamachat/engine"
)

// State is the ordered token history and checkpoint stack of one session.
// Checkpoint offsets are strictly increasing and never exceed Len.
type State struct {
	tokens      []engine.Token
	checkpoints []int
}

// NewState creates an empty State.
func NewState() *State {
	return &State{}
}

// Len returns the number of committed tokens.
func (s *State) Len() int {
	return len(s.tokens)
}

// Tokens returns a copy of the committed tokens.
func (s *State) Tokens() []engine.Token {
	return slices.Clone(s.tokens)
}

// Slice returns a copy of tokens in [from, to).
func (s *State) Slice(from, to int) []engine.Token {
	return slices.Clone(s.tokens[from:to])
}

// Last returns the most recently committed token.
func (s *State) Last() (engine.Token, bool) {
	if len(s.tokens) == 0 {
		return 0, false
	}
	return s.tokens[len(s.tokens)-1], true
}

// Push saves the current length as a checkpoint. It fails when the
// length does not exceed the newest checkpoint, which keeps offsets
// strictly increasing.
func (s *State) Push() (int, error) {
	n := len(s.tokens)
	if top, ok := s.Top(); ok && n <= top {
		return 0, fmt.Errorf("%w: length %d, newest checkpoint %d", ErrCheckpointOrder, n, top)
	}
	s.checkpoints = append(s.checkpoints, n)
	return n, nil
}

// Pop removes and returns the newest checkpoint.
func (s *State) Pop() (int, bool) {
	top, ok := s.Top()
	if ok {
		s.checkpoints = s.checkpoints[:len(s.checkpoints)-1]
	}
	return top, ok
}

// Top returns the newest checkpoint without removing it.
func (s *State) Top() (int, bool) {
	if len(s.checkpoints) == 0 {
		return 0, false
	}
	return s.checkpoints[len(s.checkpoints)-1], true
}

// Checkpoints returns a copy of the checkpoint stack, oldest first.
func (s *State) Checkpoints() []int {
	return slices.Clone(s.checkpoints)
}

func (s *State) append(tokens ...engine.Token) {
	s.tokens = append(s.tokens, tokens...)
}

// truncate drops tokens at or beyond n along with any checkpoint that
// no longer names a valid prefix.
func (s *State) truncate(n int) {
	s.tokens = s.tokens[:n]
	for len(s.checkpoints) > 0 && s.checkpoints[len(s.checkpoints)-1] > n {
		s.checkpoints = s.checkpoints[:len(s.checkpoints)-1]
	}
}
