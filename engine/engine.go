// Package engine declares the inference-engine collaborators the chat
// session drives. The numerical runtime lives behind these interfaces;
// this module never performs inference itself.
//
// Implementations are not required to be safe for concurrent use. A
// single session worker calls every method in sequence, and no method is
// ever called while another is in flight.
package engine

// Token is a vocabulary id.
type Token int32

// ImagePlaceholder marks context positions occupied by an embedded image.
// It is never sent to Decode; it only keeps committed history aligned
// with engine positions.
const ImagePlaceholder Token = -1

// ImagePlaceholderPiece is the display text of ImagePlaceholder.
const ImagePlaceholderPiece = "⁑"

// Batch is one Decode submission: consecutive tokens starting at
// position Pos in sequence SeqID.
type Batch struct {
	Tokens []Token
	Pos    int
	SeqID  int
}

// SamplerParams configures token selection. Zero values select the
// engine's defaults except Temperature, where zero means greedy.
type SamplerParams struct {
	Temperature   float64 `json:"temperature" yaml:"temperature"`
	TopK          int     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	TopP          float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	MinP          float64 `json:"min_p,omitempty" yaml:"min_p,omitempty"`
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" yaml:"repeat_penalty,omitempty"`
	RepeatLastN   int     `json:"repeat_last_n,omitempty" yaml:"repeat_last_n,omitempty"`
	Seed          uint32  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// Merge applies non-zero values from source into p.
func (p *SamplerParams) Merge(source *SamplerParams) {
	if source.Temperature > 0 {
		p.Temperature = source.Temperature
	}
	if source.TopK > 0 {
		p.TopK = source.TopK
	}
	if source.TopP > 0 {
		p.TopP = source.TopP
	}
	if source.MinP > 0 {
		p.MinP = source.MinP
	}
	if source.RepeatPenalty > 0 {
		p.RepeatPenalty = source.RepeatPenalty
	}
	if source.RepeatLastN > 0 {
		p.RepeatLastN = source.RepeatLastN
	}
	if source.Seed > 0 {
		p.Seed = source.Seed
	}
}

// Vocab answers vocabulary queries.
type Vocab interface {
	// BOS returns the beginning-of-sequence token.
	BOS() Token
	// EOT returns the end-of-turn token used to close an interrupted
	// generation.
	EOT() Token
	// IsEOG reports whether t ends generation.
	IsEOG(t Token) bool
	// AddBOS reports whether sequences should start with BOS.
	AddBOS() bool
	// Piece converts a token to display text. When special is false,
	// control tokens render as empty strings.
	Piece(t Token, special bool) string
}

// Model is the text engine collaborator: tokenizer, decoder, and the
// owner of the context window's derived state (the KV cache).
type Model interface {
	Vocab

	// Tokenize converts text to tokens. addSpecial prepends BOS when the
	// vocabulary wants it; parseSpecial recognises control-token text
	// such as "<|im_start|>".
	Tokenize(text string, addSpecial, parseSpecial bool) ([]Token, error)

	// Decode queues a batch for evaluation. A failure usually means the
	// context window is full.
	Decode(batch Batch) error

	// Synchronize blocks until queued decode work has completed.
	Synchronize() error

	// Truncate discards all derived state at positions >= n.
	Truncate(n int) error

	// NewSampler creates a sampler bound to this model's context.
	NewSampler(params SamplerParams) (Sampler, error)

	// ContextSize is the capacity of the live context in tokens.
	ContextSize() int

	// TrainContextSize is the largest context the model was trained on.
	TrainContextSize() int

	// ChatTemplate returns the model's embedded chat template, or "" for
	// base models that carry none.
	ChatTemplate() string

	// Close releases engine resources.
	Close() error
}

// Sampler selects the next token from the current context.
type Sampler interface {
	// Sample picks the next token from the logits of the last decoded
	// position.
	Sample() (Token, error)
	// Accept records t in the sampler's own history so repetition
	// penalties and grammars stay consistent.
	Accept(t Token)
}

// Vision embeds decoded images into the text engine's context.
type Vision interface {
	// Embed evaluates image starting at context position pos and returns
	// the number of positions consumed.
	Embed(image []byte, pos int) (int, error)
	// Close releases the vision model.
	Close() error
}
