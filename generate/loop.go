// Package generate drives token-by-token generation.
//
// Each step polls for cancellation, samples a token, records it with the
// sampler, commits it to the context, and prints its text. Generation
// ends on an end-of-generation token, on a commit failure, or on an
// interrupt, which closes the turn by committing an end-of-turn token so
// the context stays well formed.
package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/highlight"
	"github.com/tailored-agentic-units/llamachat/interrupt"
	"github.com/tailored-agentic-units/llamachat/observability"
	"github.com/tailored-agentic-units/llamachat/window"
)

// EventComplete is emitted when a generation ends.
const EventComplete observability.EventType = "generate.complete"

// StopReason says why a generation ended.
type StopReason int

const (
	StopEOG StopReason = iota
	StopInterrupted
	StopOverflow
)

func (r StopReason) String() string {
	switch r {
	case StopEOG:
		return "eog"
	case StopInterrupted:
		return "interrupted"
	case StopOverflow:
		return "overflow"
	default:
		return fmt.Sprintf("StopReason(%d)", int(r))
	}
}

// Result summarises a generation.
type Result struct {
	Tokens  int
	Stop    StopReason
	Elapsed time.Duration
}

// Committer evaluates tokens. *window.Manager satisfies it.
type Committer interface {
	Commit(ctx context.Context, tokens []engine.Token) error
}

// Option configures a Loop.
type Option func(*Loop)

// WithFilter overrides the default highlight.Plain output filter.
func WithFilter(f highlight.Filter) Option {
	return func(l *Loop) { l.filter = f }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(l *Loop) { l.observer = o }
}

// WithSpecial prints control tokens as text instead of hiding them.
func WithSpecial(special bool) Option {
	return func(l *Loop) { l.special = special }
}

// Loop is the generation driver for one session.
type Loop struct {
	vocab     engine.Vocab
	committer Committer
	flag      *interrupt.Flag
	filter    highlight.Filter
	observer  observability.Observer
	special   bool
}

// New creates a Loop. flag is polled once per step and cleared when
// Drive returns.
func New(vocab engine.Vocab, committer Committer, flag *interrupt.Flag, opts ...Option) *Loop {
	l := &Loop{
		vocab:     vocab,
		committer: committer,
		flag:      flag,
		filter:    highlight.NewPlain(),
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Drive generates until sampler produces an end-of-generation token or
// the turn is interrupted, writing filtered text to w as it goes.
//
// An interrupt (the flag or ctx) is not an error: an end-of-turn token is
// committed and Drive returns StopInterrupted. A commit rejected for lack
// of space returns StopOverflow with the *window.OverflowError.
func (l *Loop) Drive(ctx context.Context, sampler engine.Sampler, w io.Writer) (Result, error) {
	defer l.flag.Clear()

	start := time.Now()
	res, err := l.drive(ctx, sampler, w)
	if _, werr := io.WriteString(w, l.filter.Flush()); werr != nil && err == nil {
		err = fmt.Errorf("write output: %w", werr)
	}
	res.Elapsed = time.Since(start)

	data := map[string]any{
		"tokens":  res.Tokens,
		"stop":    res.Stop.String(),
		"elapsed": res.Elapsed.String(),
	}
	if secs := res.Elapsed.Seconds(); secs > 0 {
		data["tokens_per_second"] = float64(res.Tokens) / secs
	}
	level := observability.LevelInfo
	if err != nil {
		level = observability.LevelWarning
		data["error"] = err.Error()
	}
	l.observer.OnEvent(ctx, observability.Event{
		Type:      EventComplete,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "generate.Drive",
		Data:      data,
	})

	return res, err
}

func (l *Loop) drive(ctx context.Context, sampler engine.Sampler, w io.Writer) (Result, error) {
	var res Result
	for {
		if l.flag.Consume() || ctx.Err() != nil {
			res.Stop = StopInterrupted
			if err := l.commit(ctx, l.vocab.EOT(), &res); err != nil {
				return res, err
			}
			return res, nil
		}

		t, err := sampler.Sample()
		if err != nil {
			return res, fmt.Errorf("sample: %w", err)
		}
		sampler.Accept(t)

		if err := l.commit(ctx, t, &res); err != nil {
			return res, err
		}
		res.Tokens++

		if l.vocab.IsEOG(t) {
			res.Stop = StopEOG
			return res, nil
		}

		if _, err := io.WriteString(w, l.filter.Feed(l.vocab.Piece(t, l.special))); err != nil {
			return res, fmt.Errorf("write output: %w", err)
		}
	}
}

func (l *Loop) commit(ctx context.Context, t engine.Token, res *Result) error {
	err := l.committer.Commit(ctx, []engine.Token{t})
	if err == nil {
		return nil
	}
	var overflow *window.OverflowError
	if errors.As(err, &overflow) {
		res.Stop = StopOverflow
	}
	return err
}
