// Package session runs an interactive chat against an inference engine.
//
// A Session owns the conversation committed to the engine's context
// window. Each step reads one line of operator input, then either runs a
// slash command or renders the line as a turn, commits it, and (in auto
// mode) generates the assistant's reply. A checkpoint taken before every
// step means a turn that fails partway is rewound, leaving the context
// exactly as it was before the input was read.
//
//	s := session.New(model, console, &cfg, session.WithVision(vision))
//	if err := s.Bootstrap(ctx); err != nil { ... }
//	err := s.Run(ctx)
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/muesli/termenv"

	"github.com/tailored-agentic-units/llamachat/command"
	"github.com/tailored-agentic-units/llamachat/core/protocol"
	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/generate"
	"github.com/tailored-agentic-units/llamachat/highlight"
	"github.com/tailored-agentic-units/llamachat/interrupt"
	"github.com/tailored-agentic-units/llamachat/memory"
	"github.com/tailored-agentic-units/llamachat/observability"
	"github.com/tailored-agentic-units/llamachat/splice"
	"github.com/tailored-agentic-units/llamachat/template"
	"github.com/tailored-agentic-units/llamachat/window"
)

// Console is the operator's side of the session. *terminal.Console
// satisfies it.
type Console interface {
	io.Writer
	window.Status

	// ReadMessage returns the next message, or io.EOF when input ends.
	ReadMessage(prompt, continuation string) (string, error)
	Print(text string)
	Note(format string, args ...any)
	Error(err error)
}

// State is the orchestrator's position in a turn.
type State int

const (
	StateIdle State = iota
	StateAwaitingInput
	StateCommitting
	StateGenerating
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting-input"
	case StateCommitting:
		return "committing"
	case StateGenerating:
		return "generating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Mode selects whether the assistant replies automatically.
type Mode int

const (
	// ModeAuto generates an assistant reply after every user turn.
	ModeAuto Mode = iota
	// ModeManual commits each turn under the current role and never
	// generates; the operator speaks for every role.
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Stats accumulates generation figures for /stats.
type Stats struct {
	Turns     int
	Generated int
	Elapsed   time.Duration
	Last      generate.Result
}

// Option configures a Session.
type Option func(*Session)

// WithVision enables inline images.
func WithVision(v engine.Vision) Option {
	return func(s *Session) { s.vision = v }
}

// WithObserver overrides the default NoOpObserver.
func WithObserver(o observability.Observer) Option {
	return func(s *Session) { s.observer = o }
}

// WithInterrupt sets the flag polled during commits and generation. The
// caller is expected to raise it from a signal watcher.
func WithInterrupt(f *interrupt.Flag) Option {
	return func(s *Session) { s.flag = f }
}

// WithSnapshots enables /dump name and /load.
func WithSnapshots(snaps *memory.Snapshots) Option {
	return func(s *Session) { s.snapshots = snaps }
}

// WithSampling sets the sampler parameters.
func WithSampling(p engine.SamplerParams) Option {
	return func(s *Session) { s.sampling = p }
}

// WithTemplateConfig selects the chat format and the renderer's buffer
// limits. Without it the model's embedded template is used.
func WithTemplateConfig(cfg *template.Config) Option {
	return func(s *Session) { s.templateCfg = cfg }
}

// WithWindowConfig overrides the commit batch size.
func WithWindowConfig(cfg *window.Config) Option {
	return func(s *Session) { s.windowCfg = cfg }
}

// WithOutput enables markdown highlighting styled for out.
func WithOutput(out *termenv.Output) Option {
	return func(s *Session) { s.output = out }
}

// Session is one interactive conversation.
type Session struct {
	id      string
	cfg     Config
	model   engine.Model
	vision  engine.Vision
	console Console

	flag        *interrupt.Flag
	observer    observability.Observer
	snapshots   *memory.Snapshots
	sampling    engine.SamplerParams
	templateCfg *template.Config
	windowCfg   *window.Config
	output      *termenv.Output

	tmpl     string
	renderer *template.Renderer
	manager  *window.Manager
	splicer  *splice.Splicer
	loop     *generate.Loop
	sampler  engine.Sampler
	commands *command.Registry
	out      *lineWriter

	state        State
	mode         Mode
	role         protocol.Role
	base         bool
	systemLength int
	turns        []int
	marks        []int
	stats        Stats
	done         bool
}

// New creates a Session over model. Nothing reaches the engine until
// Bootstrap.
func New(model engine.Model, console Console, cfg *Config, opts ...Option) *Session {
	c := DefaultConfig()
	if cfg != nil {
		c.Merge(cfg)
	}

	s := &Session{
		id:       uuid.Must(uuid.NewV7()).String(),
		cfg:      c,
		model:    model,
		console:  console,
		flag:     new(interrupt.Flag),
		observer: observability.NoOpObserver{},
		role:     protocol.RoleUser,
		out:      &lineWriter{w: console, last: '\n'},
	}
	for _, opt := range opts {
		opt(s)
	}
	if c.Manual {
		s.mode = ModeManual
	}
	if s.templateCfg != nil {
		s.tmpl = s.templateCfg.Name
	}
	s.base = IsBaseModel(model, s.tmpl)

	s.renderer = template.NewRenderer(template.NewBuiltin(model.ChatTemplate()), s.templateCfg)
	s.manager = window.New(model, window.NewState(), s.windowCfg,
		window.WithStatus(console),
		window.WithInterrupt(s.flag),
		window.WithObserver(s.observer),
	)
	s.splicer = splice.New(model, s.manager, s.vision, splice.WithObserver(s.observer))

	var filter highlight.Filter = highlight.NewPlain()
	if !s.base && !c.Plain && s.output != nil {
		filter = highlight.NewMarkdown(s.output)
	}
	s.loop = generate.New(model, s.manager, s.flag,
		generate.WithFilter(filter),
		generate.WithObserver(s.observer),
		generate.WithSpecial(c.Special),
	)

	s.commands = command.NewRegistry()
	s.registerCommands()
	return s
}

// IsBaseModel reports whether model is a raw completion model: no chat
// template was chosen and the model carries none of its own.
func IsBaseModel(model engine.Model, tmpl string) bool {
	return tmpl == "" && model.ChatTemplate() == ""
}

// ID returns the session's UUIDv7 identifier.
func (s *Session) ID() string { return s.id }

// State returns where the session is in its turn cycle.
func (s *Session) State() State { return s.state }

// Mode returns the current mode.
func (s *Session) Mode() Mode { return s.mode }

// Role returns the role the next turn is committed under.
func (s *Session) Role() protocol.Role { return s.role }

// Window returns the context manager.
func (s *Session) Window() *window.Manager { return s.manager }

// Commands returns the slash-command registry, for completion.
func (s *Session) Commands() *command.Registry { return s.commands }

// Stats returns accumulated generation figures.
func (s *Session) Stats() Stats { return s.stats }

// SystemLength returns the number of tokens committed by Bootstrap.
func (s *Session) SystemLength() int { return s.systemLength }

// Bootstrap commits the beginning-of-sequence token when the vocabulary
// wants one and the system prompt, then creates the sampler. Failures
// to render or commit the system prompt wrap ErrSystemPrompt.
func (s *Session) Bootstrap(ctx context.Context) error {
	if s.model.AddBOS() {
		s.console.Show("loading bos token...")
		if err := s.manager.Commit(ctx, []engine.Token{s.model.BOS()}); err != nil {
			s.console.Clear()
			return fmt.Errorf("commit bos token: %w", err)
		}
	}

	prompt := s.cfg.SystemPrompt
	if s.base && prompt == DefaultSystemPrompt {
		prompt = ""
	}

	if prompt != "" {
		s.console.Show("loading system prompt...")
		text := prompt
		if !s.base {
			rendered, err := s.renderer.Render(s.tmpl, protocol.InitMessages(protocol.RoleSystem, prompt), false)
			if err != nil {
				s.console.Clear()
				return fmt.Errorf("%w: %w", ErrSystemPrompt, err)
			}
			text = rendered
		}
		if err := s.splicer.Eval(ctx, text, false, true); err != nil {
			s.console.Clear()
			return fmt.Errorf("%w: %w", ErrSystemPrompt, err)
		}
		s.console.Clear()

		if s.cfg.DisplayPrompt {
			if s.cfg.Special {
				s.console.Print(text)
			} else {
				s.console.Print(prompt)
			}
		}
	}
	s.systemLength = s.manager.Used()

	sampler, err := s.model.NewSampler(s.sampling)
	if err != nil {
		return fmt.Errorf("create sampler: %w", err)
	}
	s.sampler = sampler

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventStart,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "session.Bootstrap",
		Data: map[string]any{
			"session_id":    s.id,
			"base_model":    s.base,
			"mode":          s.mode.String(),
			"system_tokens": s.systemLength,
			"capacity":      s.manager.Capacity(),
			"vision":        s.vision != nil,
		},
	})
	return nil
}

// Run reads and handles input until it ends, /exit is entered, or ctx
// is cancelled. End of input is not an error.
func (s *Session) Run(ctx context.Context) error {
	defer func() {
		s.state = StateIdle
		s.observer.OnEvent(ctx, observability.Event{
			Type:      EventEnd,
			Level:     observability.LevelInfo,
			Timestamp: time.Now(),
			Source:    "session.Run",
			Data: map[string]any{
				"session_id": s.id,
				"turns":      s.stats.Turns,
				"generated":  s.stats.Generated,
				"used":       s.manager.Used(),
			},
		})
	}()

	for !s.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			if errors.Is(err, io.EOF) {
				s.out.ensureNewline()
				return nil
			}
			return err
		}
	}
	return nil
}

// Step performs one input step: read, then run a command or a turn.
// Recoverable failures are reported on the console and rewound; only
// input errors are returned.
func (s *Session) Step(ctx context.Context) error {
	s.state = StateAwaitingInput
	s.flag.Clear()
	checkpoint, err := s.manager.State().Push()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	defer func() {
		if top, ok := s.manager.State().Top(); ok && top == checkpoint {
			s.manager.State().Pop()
		}
		s.state = StateIdle
	}()

	line, err := s.console.ReadMessage(s.prompt(), "... ")
	if err != nil {
		return err
	}
	// Ctrl-C at the prompt belongs to no turn.
	s.flag.Clear()
	s.out.last = '\n'

	if !s.base && strings.TrimSpace(line) == "" {
		if s.mode == ModeManual {
			s.role = s.role.Cycle()
		}
		return nil
	}

	if command.IsCommand(line) {
		s.runCommand(ctx, line)
		return nil
	}

	s.turn(ctx, line, checkpoint)
	return nil
}

func (s *Session) prompt() string {
	if s.mode == ModeManual {
		return string(s.role) + " >>> "
	}
	return ">>> "
}

func (s *Session) runCommand(ctx context.Context, line string) {
	err := s.commands.Execute(ctx, line)

	data := map[string]any{"command": strings.Fields(line)[0]}
	level := observability.LevelVerbose
	if err != nil {
		data["error"] = err.Error()
		level = observability.LevelWarning
	}
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventCommand,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "session.Step",
		Data:      data,
	})

	if err != nil {
		s.console.Error(err)
	}
}

// turn commits line under the current role and, in auto mode, generates
// the reply. Any failure rewinds to checkpoint.
func (s *Session) turn(ctx context.Context, line string, checkpoint int) {
	s.state = StateCommitting
	role := s.role
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnStart,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "session.turn",
		Data:      map[string]any{"role": string(role), "mode": s.mode.String(), "used": checkpoint},
	})

	text := line
	if !s.base {
		rendered, err := s.renderer.Render(s.tmpl, protocol.InitMessages(role, line), s.mode == ModeAuto)
		if err != nil {
			s.fail(ctx, checkpoint, "render", err)
			return
		}
		text = rendered
	}

	if err := s.splicer.Eval(ctx, text, false, true); err != nil {
		s.fail(ctx, checkpoint, "commit", err)
		return
	}
	s.turns = append(s.turns, checkpoint)

	if s.mode == ModeManual {
		s.flag.Clear()
		s.role = role.Next()
		s.complete(ctx, role, checkpoint, nil)
		return
	}

	s.state = StateGenerating
	res, err := s.loop.Drive(ctx, s.sampler, s.out)
	s.stats.Last = res
	s.stats.Generated += res.Tokens
	s.stats.Elapsed += res.Elapsed
	s.out.ensureNewline()
	if err != nil {
		s.turns = s.turns[:len(s.turns)-1]
		s.fail(ctx, checkpoint, "generate", err)
		return
	}
	s.complete(ctx, role, checkpoint, &res)
}

func (s *Session) complete(ctx context.Context, role protocol.Role, checkpoint int, res *generate.Result) {
	s.stats.Turns++

	data := map[string]any{
		"role":      string(role),
		"committed": s.manager.Used() - checkpoint,
		"used":      s.manager.Used(),
		"capacity":  s.manager.Capacity(),
	}
	if res != nil {
		data["generated"] = res.Tokens
		data["stop"] = res.Stop.String()
	}
	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnComplete,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "session.turn",
		Data:      data,
	})
}

// fail reports err and rewinds the context to checkpoint. The rewind
// happens after every kind of failure, so chunks a failed commit left
// behind never survive into the next turn.
func (s *Session) fail(ctx context.Context, checkpoint int, phase string, err error) {
	s.console.Clear()
	if errors.Is(err, window.ErrInterrupted) {
		s.console.Note("interrupted")
	} else {
		s.console.Error(err)
	}

	rewound := s.manager.Used() - checkpoint
	if rerr := s.manager.Rewind(ctx, checkpoint); rerr != nil {
		s.console.Error(rerr)
	}

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventTurnFailed,
		Level:     observability.LevelWarning,
		Timestamp: time.Now(),
		Source:    "session.turn",
		Data: map[string]any{
			"phase":   phase,
			"error":   err.Error(),
			"rewound": rewound,
		},
	})
}

// lineWriter remembers the last byte written so replies always end on a
// fresh line.
type lineWriter struct {
	w    io.Writer
	last byte
}

func (l *lineWriter) Write(p []byte) (int, error) {
	n, err := l.w.Write(p)
	if n > 0 {
		l.last = p[n-1]
	}
	return n, err
}

func (l *lineWriter) ensureNewline() {
	if l.last != '\n' {
		l.Write([]byte{'\n'})
	}
}
