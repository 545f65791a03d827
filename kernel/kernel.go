// Package kernel is the composition root of llamachat. It connects to the
// inference engine, builds the terminal console, snapshot store and
// session from configuration, and owns their teardown.
//
// The kernel initializes from configuration via New, creating all subsystems
// internally. Functional options allow test overrides of any subsystem.
//
//	k, err := kernel.New(ctx, &cfg)
//	defer k.Close()
//	err = k.Run(ctx)
//	os.Exit(kernel.ExitCode(err))
package kernel

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/engine/remote"
	"github.com/tailored-agentic-units/llamachat/interrupt"
	"github.com/tailored-agentic-units/llamachat/memory"
	"github.com/tailored-agentic-units/llamachat/observability"
	"github.com/tailored-agentic-units/llamachat/session"
	"github.com/tailored-agentic-units/llamachat/terminal"
)

// Option configures a Kernel before its subsystems are built. Overrides
// replace the config-created defaults.
type Option func(*Kernel)

// WithModel supplies the engine instead of dialing Config.Engine.URL.
func WithModel(m engine.Model) Option {
	return func(k *Kernel) { k.model = m }
}

// WithVision supplies the image embedder used alongside WithModel.
func WithVision(v engine.Vision) Option {
	return func(k *Kernel) { k.vision = v }
}

// WithConsole overrides the terminal console on stdin and stdout.
func WithConsole(c session.Console) Option {
	return func(k *Kernel) { k.console = c }
}

// WithMemoryStore overrides the config-created snapshot store.
func WithMemoryStore(s memory.Store) Option {
	return func(k *Kernel) { k.store = s }
}

// WithObserver adds an observer alongside the one named in
// Config.Observer.
func WithObserver(o observability.Observer) Option {
	return func(k *Kernel) { k.extra = append(k.extra, o) }
}

// WithHTTPClient sets the client used to dial the engine.
func WithHTTPClient(c *http.Client) Option {
	return func(k *Kernel) { k.httpClient = c }
}

// WithIO sets the streams the default console reads and writes.
func WithIO(in io.Reader, out io.Writer) Option {
	return func(k *Kernel) { k.in, k.out = in, out }
}

// Kernel owns the engine connection and the session running over it.
type Kernel struct {
	cfg        Config
	model      engine.Model
	vision     engine.Vision
	console    session.Console
	store      memory.Store
	observer   observability.Observer
	extra      []observability.Observer
	httpClient *http.Client
	in         io.Reader
	out        io.Writer

	flag    *interrupt.Flag
	session *session.Session
	dialed  bool
}

// New creates a Kernel from configuration, typically DefaultConfig or
// LoadConfig output adjusted by the caller. A nil cfg uses the defaults.
// It connects to the engine, checks its context window, resolves vision
// and builds the session. Failures wrap ErrModelInit, ErrContextInit or
// ErrVisionInit so callers can map them to exit codes.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Kernel, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}

	k := &Kernel{
		cfg:        c,
		httpClient: http.DefaultClient,
		in:         os.Stdin,
		out:        os.Stdout,
		flag:       new(interrupt.Flag),
	}
	for _, opt := range opts {
		opt(k)
	}

	obs, err := observability.GetObserver(c.Observer)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve observer: %w", err)
	}
	k.observer = observability.NewMultiObserver(append([]observability.Observer{obs}, k.extra...)...)

	if k.model == nil {
		client, err := remote.Dial(ctx, k.httpClient, c.Engine.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrModelInit, c.Engine.URL, err)
		}
		k.model = client
		k.dialed = true
		if client.HasVision() {
			k.vision = client
		}
	}

	if err := k.checkContext(ctx); err != nil {
		k.Close()
		return nil, err
	}
	if c.Engine.Vision && k.vision == nil {
		k.Close()
		return nil, fmt.Errorf("%w: engine does not embed images", ErrVisionInit)
	}

	if k.store == nil {
		k.store = memory.NewStore(&c.Memory)
	}

	var sessionOpts []session.Option
	if k.console == nil {
		console := terminal.New(k.in, k.out, terminal.WithCompleter(k.complete))
		if console.Interactive() {
			sessionOpts = append(sessionOpts, session.WithOutput(console.Output()))
		}
		k.console = console
	}

	sessionOpts = append(sessionOpts,
		session.WithObserver(k.observer),
		session.WithInterrupt(k.flag),
		session.WithSnapshots(memory.NewSnapshots(k.store)),
		session.WithSampling(c.Sampling),
		session.WithTemplateConfig(&c.Template),
		session.WithWindowConfig(&c.Window),
	)
	if k.vision != nil {
		sessionOpts = append(sessionOpts, session.WithVision(k.vision))
	}
	k.session = session.New(k.model, k.console, &c.Session, sessionOpts...)

	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventInit,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "kernel.New",
		Data: map[string]any{
			"session_id":   k.session.ID(),
			"engine":       c.Engine.URL,
			"remote":       k.dialed,
			"context_size": k.model.ContextSize(),
			"vision":       k.vision != nil,
			"template":     c.Template.Name,
		},
	})
	return k, nil
}

// checkContext rejects engines without a context window and warns when
// the window exceeds what the model was trained on.
func (k *Kernel) checkContext(ctx context.Context) error {
	size, train := k.model.ContextSize(), k.model.TrainContextSize()
	if size <= 0 {
		return fmt.Errorf("%w: engine reports a context size of %d", ErrContextInit, size)
	}
	if train > 0 && size > train {
		k.observer.OnEvent(ctx, observability.Event{
			Type:      EventContextWarning,
			Level:     observability.LevelWarning,
			Timestamp: time.Now(),
			Source:    "kernel.New",
			Data: map[string]any{
				"context_size":       size,
				"train_context_size": train,
			},
		})
	}
	return nil
}

func (k *Kernel) complete(prefix string) []string {
	if k.session == nil {
		return nil
	}
	return k.session.Commands().Complete(prefix)
}

// Session returns the session built by New.
func (k *Kernel) Session() *session.Session {
	return k.session
}

// Run bootstraps the session and drives it until input ends, /exit is
// entered, or ctx is cancelled. SIGINT raises the interrupt flag for the
// duration of the run, so Ctrl-C stops a reply instead of the process.
func (k *Kernel) Run(ctx context.Context) error {
	watchCtx, stop := context.WithCancel(ctx)
	done := interrupt.Watch(watchCtx, k.flag)
	defer func() {
		stop()
		<-done
	}()

	start := time.Now()
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunStart,
		Level:     observability.LevelInfo,
		Timestamp: start,
		Source:    "kernel.Run",
		Data:      map[string]any{"session_id": k.session.ID()},
	})

	if err := k.session.Bootstrap(ctx); err != nil {
		return err
	}
	err := k.session.Run(ctx)

	data := map[string]any{
		"session_id": k.session.ID(),
		"turns":      k.session.Stats().Turns,
		"duration":   time.Since(start).String(),
	}
	level := observability.LevelInfo
	if err != nil {
		data["error"] = err.Error()
		level = observability.LevelWarning
	}
	k.observer.OnEvent(ctx, observability.Event{
		Type:      EventRunComplete,
		Level:     level,
		Timestamp: time.Now(),
		Source:    "kernel.Run",
		Data:      data,
	})
	return err
}

// Close releases the engine. Models passed with WithModel belong to the
// caller and are left open.
func (k *Kernel) Close() error {
	if !k.dialed {
		return nil
	}
	k.dialed = false

	err := k.model.Close()
	k.observer.OnEvent(context.Background(), observability.Event{
		Type:      EventClose,
		Level:     observability.LevelVerbose,
		Timestamp: time.Now(),
		Source:    "kernel.Close",
		Data:      map[string]any{"engine": k.cfg.Engine.URL},
	})
	return err
}
