// Package mock provides a deterministic in-process engine for tests.
//
// The tokenizer maps every rune to one token (rune value + RuneBase) and
// recognises registered special strings when parseSpecial is set. The
// sampler replays a fixed script. Every Decode, Truncate and Embed call is
// recorded so tests can assert exactly what reached the engine.
package mock

import (
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/tailored-agentic-units/llamachat/engine"
)

// Reserved token ids.
const (
	TokenBOS engine.Token = 1
	TokenEOT engine.Token = 2
	TokenEOS engine.Token = 3

	// RuneBase offsets rune values so they never collide with the
	// reserved ids or with registered specials.
	RuneBase engine.Token = 1000
)

// Model is a scripted engine.Model.
type Model struct {
	contextSize      int
	trainContextSize int
	chatTemplate     string
	addBOS           bool
	specials         map[string]engine.Token
	script           []engine.Token
	decodeHook       func(engine.Batch) error
	sampleHook       func(step int)

	pos       int
	batches   []engine.Batch
	truncates []int
	syncs     int
	samplers  []*Sampler
	closed    bool
}

// Option configures a Model.
type Option func(*Model)

// WithContextSize sets the live context capacity.
func WithContextSize(n int) Option {
	return func(m *Model) { m.contextSize = n }
}

// WithTrainContextSize sets the reported training context size.
func WithTrainContextSize(n int) Option {
	return func(m *Model) { m.trainContextSize = n }
}

// WithChatTemplate sets the embedded chat template. An empty template
// makes the model look like a base model.
func WithChatTemplate(tmpl string) Option {
	return func(m *Model) { m.chatTemplate = tmpl }
}

// WithAddBOS sets whether sequences should start with BOS.
func WithAddBOS(add bool) Option {
	return func(m *Model) { m.addBOS = add }
}

// WithSpecial registers special-token text.
func WithSpecial(text string, token engine.Token) Option {
	return func(m *Model) { m.specials[text] = token }
}

// WithScript sets the tokens samplers return, in order. Once the script
// is exhausted samplers return TokenEOS.
func WithScript(tokens ...engine.Token) Option {
	return func(m *Model) { m.script = tokens }
}

// WithDecodeHook installs a hook that runs before every Decode. A
// non-nil error fails that Decode.
func WithDecodeHook(hook func(engine.Batch) error) Option {
	return func(m *Model) { m.decodeHook = hook }
}

// WithSampleHook installs a hook that runs inside every Sample call with
// the zero-based step number.
func WithSampleHook(hook func(step int)) Option {
	return func(m *Model) { m.sampleHook = hook }
}

// NewModel creates a Model with a 4096-token context, a chatml-style
// template, and no BOS.
func NewModel(opts ...Option) *Model {
	m := &Model{
		contextSize:      4096,
		trainContextSize: 8192,
		chatTemplate:     "{% for m in messages %}<|im_start|>{{ m.role }}{% endfor %}",
		specials:         make(map[string]engine.Token),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Text tokenizes s without specials. Convenient for building expected
// token slices in tests.
func Text(s string) []engine.Token {
	tokens := make([]engine.Token, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		tokens = append(tokens, RuneBase+engine.Token(r))
	}
	return tokens
}

func (m *Model) BOS() engine.Token { return TokenBOS }
func (m *Model) EOT() engine.Token { return TokenEOT }
func (m *Model) AddBOS() bool      { return m.addBOS }

func (m *Model) IsEOG(t engine.Token) bool {
	return t == TokenEOT || t == TokenEOS
}

func (m *Model) Piece(t engine.Token, special bool) string {
	switch {
	case t == engine.ImagePlaceholder:
		return engine.ImagePlaceholderPiece
	case t >= RuneBase:
		return string(rune(t - RuneBase))
	}
	if !special {
		return ""
	}
	switch t {
	case TokenBOS:
		return "<s>"
	case TokenEOT:
		return "<|eot|>"
	case TokenEOS:
		return "</s>"
	}
	for text, token := range m.specials {
		if token == t {
			return text
		}
	}
	return ""
}

func (m *Model) Tokenize(text string, addSpecial, parseSpecial bool) ([]engine.Token, error) {
	var tokens []engine.Token
	if addSpecial && m.addBOS {
		tokens = append(tokens, TokenBOS)
	}
	for len(text) > 0 {
		if parseSpecial {
			if special, token, ok := m.matchSpecial(text); ok {
				tokens = append(tokens, token)
				text = text[len(special):]
				continue
			}
		}
		r, size := utf8.DecodeRuneInString(text)
		tokens = append(tokens, RuneBase+engine.Token(r))
		text = text[size:]
	}
	return tokens, nil
}

func (m *Model) matchSpecial(text string) (string, engine.Token, bool) {
	best := ""
	var bestToken engine.Token
	for special, token := range m.specials {
		if strings.HasPrefix(text, special) && len(special) > len(best) {
			best, bestToken = special, token
		}
	}
	return best, bestToken, best != ""
}

func (m *Model) Decode(batch engine.Batch) error {
	if m.closed {
		return engine.ErrClosed
	}
	if m.decodeHook != nil {
		if err := m.decodeHook(batch); err != nil {
			return err
		}
	}
	if batch.Pos != m.pos {
		return fmt.Errorf("%w: batch at position %d, engine at %d", engine.ErrDecode, batch.Pos, m.pos)
	}
	if m.pos+len(batch.Tokens) > m.contextSize {
		return engine.ErrContextFull
	}
	m.batches = append(m.batches, engine.Batch{
		Tokens: slices.Clone(batch.Tokens),
		Pos:    batch.Pos,
		SeqID:  batch.SeqID,
	})
	m.pos += len(batch.Tokens)
	return nil
}

func (m *Model) Synchronize() error {
	m.syncs++
	return nil
}

func (m *Model) Truncate(n int) error {
	if n < 0 || n > m.pos {
		return fmt.Errorf("truncate to %d: engine holds %d positions", n, m.pos)
	}
	m.truncates = append(m.truncates, n)
	m.pos = n
	return nil
}

func (m *Model) NewSampler(params engine.SamplerParams) (engine.Sampler, error) {
	s := &Sampler{model: m, params: params}
	m.samplers = append(m.samplers, s)
	return s, nil
}

func (m *Model) ContextSize() int      { return m.contextSize }
func (m *Model) TrainContextSize() int { return m.trainContextSize }
func (m *Model) ChatTemplate() string  { return m.chatTemplate }

func (m *Model) Close() error {
	m.closed = true
	return nil
}

// Advance moves the engine position forward by n without recording a
// batch, the way an image embedding does.
func (m *Model) Advance(n int) {
	m.pos += n
}

// Pos returns the number of positions the engine currently holds.
func (m *Model) Pos() int { return m.pos }

// Batches returns every successful Decode batch in order.
func (m *Model) Batches() []engine.Batch { return slices.Clone(m.batches) }

// Decoded returns the tokens of every successful Decode batch, flattened.
func (m *Model) Decoded() []engine.Token {
	var tokens []engine.Token
	for _, b := range m.batches {
		tokens = append(tokens, b.Tokens...)
	}
	return tokens
}

// Truncates returns the arguments of every Truncate call.
func (m *Model) Truncates() []int { return slices.Clone(m.truncates) }

// Syncs returns the number of Synchronize calls.
func (m *Model) Syncs() int { return m.syncs }

// Samplers returns every sampler created so far.
func (m *Model) Samplers() []*Sampler { return slices.Clone(m.samplers) }

// Closed reports whether Close was called.
func (m *Model) Closed() bool { return m.closed }

// Sampler replays the model's script.
type Sampler struct {
	model    *Model
	params   engine.SamplerParams
	step     int
	accepted []engine.Token
}

func (s *Sampler) Sample() (engine.Token, error) {
	if s.model.sampleHook != nil {
		s.model.sampleHook(s.step)
	}
	var t engine.Token = TokenEOS
	if s.step < len(s.model.script) {
		t = s.model.script[s.step]
	}
	s.step++
	return t, nil
}

func (s *Sampler) Accept(t engine.Token) {
	s.accepted = append(s.accepted, t)
}

// Params returns the parameters the sampler was created with.
func (s *Sampler) Params() engine.SamplerParams { return s.params }

// Accepted returns every token passed to Accept.
func (s *Sampler) Accepted() []engine.Token { return slices.Clone(s.accepted) }

// Vision is a scripted engine.Vision that advances its model's position
// by a fixed number of positions per image.
type Vision struct {
	model     *Model
	positions int
	err       error
	partial   int
	images    [][]byte
	closed    bool
}

// NewVision creates a Vision bound to model that consumes positions
// context positions per image.
func NewVision(model *Model, positions int) *Vision {
	return &Vision{model: model, positions: positions}
}

// FailWith makes every subsequent Embed return err.
func (v *Vision) FailWith(err error) { v.err = err }

// FailAfterWriting makes every subsequent Embed advance the model by n
// positions and then return err, as an engine that fails mid-image does.
func (v *Vision) FailAfterWriting(n int, err error) {
	v.partial, v.err = n, err
}

func (v *Vision) Embed(image []byte, pos int) (int, error) {
	if v.err != nil {
		v.model.Advance(v.partial)
		return 0, v.err
	}
	if pos != v.model.pos {
		return 0, fmt.Errorf("%w: image at position %d, engine at %d", engine.ErrDecode, pos, v.model.pos)
	}
	if v.model.pos+v.positions > v.model.contextSize {
		return 0, engine.ErrContextFull
	}
	v.images = append(v.images, slices.Clone(image))
	v.model.Advance(v.positions)
	return v.positions, nil
}

func (v *Vision) Close() error {
	v.closed = true
	return nil
}

// Images returns every embedded image in order.
func (v *Vision) Images() [][]byte { return slices.Clone(v.images) }
