// Package splice commits user text that may carry inline images.
//
// Text is scanned once, left to right, for base64 data URIs. Each URI
// that decodes to a recognisable image is embedded through the vision
// model at its position in the text; everything else, including
// malformed or non-image URIs, is committed as plain text. The order of
// text and images in the context mirrors their order in the input.
package splice

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/observability"
)

// EventImage is emitted for every spliced image.
const EventImage observability.EventType = "splice.image"

// Tokenizer converts text to tokens. engine.Model satisfies it.
type Tokenizer interface {
	Tokenize(text string, addSpecial, parseSpecial bool) ([]engine.Token, error)
}

// Committer evaluates tokens and images. *window.Manager satisfies it.
type Committer interface {
	Commit(ctx context.Context, tokens []engine.Token) error
	CommitImage(ctx context.Context, vision engine.Vision, image []byte) error
}

// Option configures a Splicer.
type Option func(*Splicer)

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(s *Splicer) { s.observer = o }
}

// Splicer interleaves text and image commits.
type Splicer struct {
	tokenizer Tokenizer
	committer Committer
	vision    engine.Vision
	observer  observability.Observer
}

// New creates a Splicer. With a nil vision model no URIs are embedded
// and all text, data URIs included, is committed as plain text.
func New(tokenizer Tokenizer, committer Committer, vision engine.Vision, opts ...Option) *Splicer {
	s := &Splicer{
		tokenizer: tokenizer,
		committer: committer,
		vision:    vision,
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Eval commits text, embedding any inline images it carries. It fails
// only when a text flush or an image embedding fails; a URI that does
// not parse, is not an image, or does not decode is left in the text.
//
// Every segment is flushed, including an empty trailing one, so callers
// observe one text commit per segment boundary.
func (s *Splicer) Eval(ctx context.Context, text string, addSpecial, parseSpecial bool) error {
	if s.vision == nil {
		return s.flush(ctx, text, addSpecial, parseSpecial)
	}

	i := 0
	for {
		pos := indexFold(text, Prefix, i)
		if pos < 0 {
			return s.flush(ctx, text, addSpecial, parseSpecial)
		}
		i = pos + len(Prefix)

		uri, n, ok := ParseDataURI(text[i:])
		if !ok || !uri.IsImage() {
			continue
		}
		img, err := uri.Decode()
		if err != nil {
			continue
		}
		format, ok := Sniff(img)
		if !ok {
			continue
		}

		if err := s.flush(ctx, text[:pos], addSpecial, parseSpecial); err != nil {
			return err
		}
		if err := s.committer.CommitImage(ctx, s.vision, img); err != nil {
			return fmt.Errorf("embed image: %w", err)
		}

		digest := blake3.Sum256(img)
		s.observer.OnEvent(ctx, observability.Event{
			Type:      EventImage,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "splice.Eval",
			Data: map[string]any{
				"mime":   uri.MediaType,
				"format": format,
				"bytes":  len(img),
				"blake3": hex.EncodeToString(digest[:]),
			},
		})

		text = text[i+n:]
		i = 0
	}
}

func (s *Splicer) flush(ctx context.Context, text string, addSpecial, parseSpecial bool) error {
	tokens, err := s.tokenizer.Tokenize(text, addSpecial, parseSpecial)
	if err != nil {
		return fmt.Errorf("tokenize: %w", err)
	}
	return s.committer.Commit(ctx, tokens)
}
