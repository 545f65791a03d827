package window

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/interrupt"
	"github.com/tailored-agentic-units/llamachat/observability"
)

// Status displays ephemeral progress text that is overwritten in place
// and never becomes part of the transcript.
type Status interface {
	Show(text string)
	Clear()
}

type noStatus struct{}

func (noStatus) Show(string) {}
func (noStatus) Clear()      {}

// Option configures a Manager.
type Option func(*Manager)

// WithStatus routes commit progress to s.
func WithStatus(s Status) Option {
	return func(m *Manager) { m.status = s }
}

// WithInterrupt makes Commit poll f between chunks.
func WithInterrupt(f *interrupt.Flag) Option {
	return func(m *Manager) { m.flag = f }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// Manager commits tokens to the engine and keeps State in step with it.
type Manager struct {
	model     engine.Model
	state     *State
	batchSize int
	flag      *interrupt.Flag
	status    Status
	observer  observability.Observer
}

// New creates a Manager over model and state. A nil cfg selects
// DefaultConfig.
func New(model engine.Model, state *State, cfg *Config, opts ...Option) *Manager {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	m := &Manager{
		model:     model,
		state:     state,
		batchSize: c.BatchSize,
		flag:      new(interrupt.Flag),
		status:    noStatus{},
		observer:  observability.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the managed conversation state.
func (m *Manager) State() *State { return m.state }

// Used returns the number of context positions committed.
func (m *Manager) Used() int { return m.state.Len() }

// Capacity returns the context window size in tokens.
func (m *Manager) Capacity() int { return m.model.ContextSize() }

// Remaining returns the number of free context positions.
func (m *Manager) Remaining() int { return m.Capacity() - m.Used() }

// Commit evaluates tokens and appends them to State.
//
// A commit that cannot fit is rejected with *OverflowError before any
// token reaches the engine. Otherwise tokens are sent in chunks of at
// most BatchSize. The interrupt flag and ctx are checked between chunks,
// never before the first, and a cancelled commit returns ErrInterrupted.
// Chunks the engine accepted stay committed when a later chunk is
// interrupted or rejected; callers rewind to a checkpoint to undo them.
func (m *Manager) Commit(ctx context.Context, tokens []engine.Token) error {
	n := len(tokens)
	used, capacity := m.Used(), m.Capacity()
	if used+n > capacity {
		return m.overflow(ctx, &OverflowError{Used: used, Requested: n, Capacity: capacity})
	}

	start := time.Now()
	for i := 0; i < n; i += m.batchSize {
		if i > 0 {
			if err := m.cancelled(ctx); err != nil {
				m.status.Clear()
				m.observer.OnEvent(ctx, observability.Event{
					Type:      EventInterrupted,
					Level:     observability.LevelInfo,
					Timestamp: time.Now(),
					Source:    "window.Commit",
					Data:      map[string]any{"committed": i, "requested": n},
				})
				return err
			}
		}
		if n > m.batchSize {
			m.status.Show(fmt.Sprintf("loading prompt %d%%...", i*100/n))
		}

		chunk := tokens[i:min(i+m.batchSize, n)]
		err := m.model.Decode(engine.Batch{Tokens: chunk, Pos: m.state.Len()})
		if err != nil {
			m.status.Clear()
			return m.overflow(ctx, &OverflowError{
				Used:      m.state.Len(),
				Requested: len(chunk),
				Capacity:  capacity,
				Err:       err,
			})
		}
		m.state.append(chunk...)
	}
	m.status.Clear()

	if err := m.model.Synchronize(); err != nil {
		return fmt.Errorf("synchronize engine: %w", err)
	}

	if n > 1 {
		m.observer.OnEvent(ctx, observability.Event{
			Type:      EventCommit,
			Level:     observability.LevelVerbose,
			Timestamp: time.Now(),
			Source:    "window.Commit",
			Data: map[string]any{
				"tokens":   n,
				"used":     m.state.Len(),
				"capacity": capacity,
				"elapsed":  time.Since(start).String(),
			},
		})
	}
	return nil
}

// CommitImage embeds image through vision at the current position and
// records the positions it occupies as engine.ImagePlaceholder tokens.
func (m *Manager) CommitImage(ctx context.Context, vision engine.Vision, image []byte) error {
	if vision == nil {
		return engine.ErrVisionMissing
	}

	used, capacity := m.Used(), m.Capacity()
	if used >= capacity {
		return m.overflow(ctx, &OverflowError{Used: used, Capacity: capacity})
	}

	n, err := vision.Embed(image, used)
	if err != nil {
		if errors.Is(err, engine.ErrContextFull) {
			return m.overflow(ctx, &OverflowError{Used: used, Capacity: capacity, Err: err})
		}
		return fmt.Errorf("embed image: %w", err)
	}

	m.state.append(slices.Repeat([]engine.Token{engine.ImagePlaceholder}, n)...)
	if err := m.model.Synchronize(); err != nil {
		return fmt.Errorf("synchronize engine: %w", err)
	}

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventImage,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "window.CommitImage",
		Data:      map[string]any{"positions": n, "used": m.state.Len()},
	})
	return nil
}

// Rewind discards every position at or beyond n, in the engine first and
// then in State. Checkpoints above n are dropped.
func (m *Manager) Rewind(ctx context.Context, n int) error {
	used := m.state.Len()
	if n < 0 || n > used {
		return fmt.Errorf("%w: %d not in [0, %d]", ErrRewindRange, n, used)
	}
	// A failed Decode or Embed can leave the engine ahead of State, so
	// the engine is truncated even when State has nothing to drop.
	if err := m.model.Truncate(n); err != nil {
		return fmt.Errorf("truncate engine context: %w", err)
	}
	m.state.truncate(n)

	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventRewind,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "window.Rewind",
		Data:      map[string]any{"from": used, "to": n},
	})
	return nil
}

func (m *Manager) cancelled(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	if m.flag.Consume() {
		return ErrInterrupted
	}
	return nil
}

func (m *Manager) overflow(ctx context.Context, err *OverflowError) error {
	m.observer.OnEvent(ctx, observability.Event{
		Type:      EventOverflow,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "window.Commit",
		Data: map[string]any{
			"used":      err.Used,
			"requested": err.Requested,
			"capacity":  err.Capacity,
		},
	})
	return err
}
