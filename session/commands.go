package session

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/tailored-agentic-units/llamachat/command"
	"github.com/tailored-agentic-units/llamachat/core/protocol"
	"github.com/tailored-agentic-units/llamachat/engine"
	"github.com/tailored-agentic-units/llamachat/memory"
	"github.com/tailored-agentic-units/llamachat/observability"
)

func (s *Session) registerCommands() {
	commands := []struct {
		cmd     command.Command
		handler command.Handler
	}{
		{command.Command{Name: "help", Description: "show this help"}, s.cmdHelp},
		{command.Command{Name: "exit", Description: "end the session"}, s.cmdExit},
		{command.Command{Name: "clear", Description: "forget everything after the system prompt"}, s.cmdClear},
		{command.Command{Name: "undo", Description: "remove the last turn"}, s.cmdUndo},
		{command.Command{Name: "forget", Description: "remove the oldest turn to free space"}, s.cmdForget},
		{command.Command{Name: "push", Description: "save the current context on the stack"}, s.cmdPush},
		{command.Command{Name: "pop", Description: "restore the context saved by /push"}, s.cmdPop},
		{command.Command{Name: "stack", Description: "list saved contexts"}, s.cmdStack},
		{command.Command{Name: "manual", Usage: "[on|off]", Description: "toggle manual role mode"}, s.cmdManual},
		{command.Command{Name: "context", Description: "show context window usage"}, s.cmdContext},
		{command.Command{Name: "stats", Description: "show generation statistics"}, s.cmdStats},
		{command.Command{Name: "dump", Usage: "[name]", Description: "print the context, or save it as a snapshot"}, s.cmdDump},
		{command.Command{Name: "load", Usage: "<name>", Description: "restore a saved snapshot"}, s.cmdLoad},
	}

	for _, c := range commands {
		if err := s.commands.Register(c.cmd, c.handler); err != nil {
			panic(fmt.Sprintf("session: register /%s: %v", c.cmd.Name, err))
		}
	}
}

func (s *Session) cmdHelp(context.Context, []string) error {
	s.console.Print(strings.TrimSuffix(s.commands.Help(), "\n"))
	return nil
}

func (s *Session) cmdExit(context.Context, []string) error {
	s.done = true
	return nil
}

func (s *Session) cmdClear(ctx context.Context, _ []string) error {
	if err := s.rewind(ctx, s.systemLength); err != nil {
		return err
	}
	s.console.Note("context cleared; %d tokens used", s.manager.Used())
	return nil
}

func (s *Session) cmdUndo(ctx context.Context, _ []string) error {
	if len(s.turns) == 0 {
		return ErrNothingToUndo
	}
	if err := s.rewind(ctx, s.turns[len(s.turns)-1]); err != nil {
		return err
	}
	s.console.Note("undone; %d tokens used", s.manager.Used())
	return nil
}

// cmdForget removes the oldest turn and re-evaluates everything after
// it, since the engine cannot shift positions in place.
func (s *Session) cmdForget(ctx context.Context, _ []string) error {
	if len(s.turns) == 0 {
		return ErrNothingToForget
	}

	start, end := s.turns[0], s.manager.Used()
	if len(s.turns) > 1 {
		end = s.turns[1]
	}
	used := s.manager.Used()
	if slices.Contains(s.manager.State().Slice(start, used), engine.ImagePlaceholder) {
		return ErrImageHistory
	}

	tail := s.manager.State().Slice(end, used)
	if err := s.manager.Rewind(ctx, start); err != nil {
		return err
	}
	shift := end - start
	if err := s.manager.Commit(ctx, tail); err != nil {
		s.turns, s.marks = nil, nil
		return fmt.Errorf("re-evaluate context: %w", err)
	}

	turns := s.turns[1:]
	s.turns = make([]int, 0, len(turns))
	for _, t := range turns {
		s.turns = append(s.turns, t-shift)
	}
	marks := s.marks
	s.marks = nil
	for _, m := range marks {
		switch {
		case m <= start:
			s.marks = append(s.marks, m)
		case m >= end:
			s.marks = append(s.marks, m-shift)
		}
	}

	s.console.Note("forgot %d tokens; %d tokens used", shift, s.manager.Used())
	return nil
}

func (s *Session) cmdPush(context.Context, []string) error {
	s.marks = append(s.marks, s.manager.Used())
	s.console.Note("pushed at %d tokens (depth %d)", s.manager.Used(), len(s.marks))
	return nil
}

func (s *Session) cmdPop(ctx context.Context, _ []string) error {
	if len(s.marks) == 0 {
		return ErrEmptyStack
	}
	n := s.marks[len(s.marks)-1]
	s.marks = s.marks[:len(s.marks)-1]
	if err := s.rewind(ctx, n); err != nil {
		return err
	}
	s.console.Note("popped to %d tokens (depth %d)", n, len(s.marks))
	return nil
}

func (s *Session) cmdStack(context.Context, []string) error {
	if len(s.marks) == 0 {
		s.console.Note("stack is empty")
		return nil
	}
	for i, m := range slices.Backward(s.marks) {
		s.console.Print(fmt.Sprintf("%d: %d tokens", i, m))
	}
	return nil
}

func (s *Session) cmdManual(_ context.Context, args []string) error {
	manual := s.mode != ModeManual
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "on":
			manual = true
		case "off":
			manual = false
		default:
			return fmt.Errorf("%w: /manual [on|off]", command.ErrUsage)
		}
	}

	if manual {
		s.mode = ModeManual
	} else {
		s.mode = ModeAuto
		s.role = protocol.RoleUser
	}
	s.console.Note("%s mode", s.mode)
	return nil
}

func (s *Session) cmdContext(context.Context, []string) error {
	used, capacity := s.manager.Used(), s.manager.Capacity()
	s.console.Print(fmt.Sprintf("%d/%d tokens used (%.1f%%), %d system, %d turns, %d saved",
		used, capacity, percent(used, capacity), s.systemLength, len(s.turns), len(s.marks)))
	return nil
}

func (s *Session) cmdStats(context.Context, []string) error {
	st := s.stats
	rate := 0.0
	if secs := st.Elapsed.Seconds(); secs > 0 {
		rate = float64(st.Generated) / secs
	}
	s.console.Print(fmt.Sprintf("%d turns, %d tokens generated in %s (%.2f tokens/s), last reply %d tokens (%s)",
		st.Turns, st.Generated, st.Elapsed.Round(time.Millisecond), rate, st.Last.Tokens, st.Last.Stop))
	return nil
}

func (s *Session) cmdDump(ctx context.Context, args []string) error {
	if len(args) == 0 {
		var b strings.Builder
		for _, t := range s.manager.State().Tokens() {
			b.WriteString(s.model.Piece(t, true))
		}
		s.console.Print(b.String())
		return nil
	}

	if s.snapshots == nil {
		return ErrNoSnapshots
	}
	snap := &memory.Snapshot{
		Version:      memory.SnapshotVersion,
		SessionID:    s.id,
		Template:     s.tmpl,
		Tokens:       s.manager.State().Tokens(),
		SystemLength: s.systemLength,
		Turns:        slices.Clone(s.turns),
		Marks:        slices.Clone(s.marks),
		Manual:       s.mode == ModeManual,
		Role:         string(s.role),
		CreatedAt:    time.Now().Unix(),
	}
	if err := s.snapshots.Save(ctx, args[0], snap); err != nil {
		return err
	}

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventSnapshotSaved,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "session.dump",
		Data:      map[string]any{"name": args[0], "tokens": len(snap.Tokens)},
	})
	s.console.Note("saved %d tokens as %q", len(snap.Tokens), args[0])
	return nil
}

func (s *Session) cmdLoad(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: /load <name>", command.ErrUsage)
	}
	if s.snapshots == nil {
		return ErrNoSnapshots
	}

	snap, err := s.snapshots.Load(ctx, args[0])
	if err != nil {
		return err
	}
	if slices.Contains(snap.Tokens, engine.ImagePlaceholder) {
		return ErrImageHistory
	}
	if len(snap.Tokens) > s.manager.Capacity() {
		return fmt.Errorf("snapshot %q holds %d tokens, context capacity is %d", args[0], len(snap.Tokens), s.manager.Capacity())
	}

	if err := s.rewind(ctx, 0); err != nil {
		return err
	}
	if err := s.manager.Commit(ctx, snap.Tokens); err != nil {
		s.systemLength = 0
		return fmt.Errorf("re-evaluate snapshot: %w", err)
	}

	s.systemLength = snap.SystemLength
	s.turns = slices.Clone(snap.Turns)
	s.marks = slices.Clone(snap.Marks)
	s.mode = ModeAuto
	s.role = protocol.RoleUser
	if snap.Manual {
		s.mode = ModeManual
		if role, err := protocol.ParseRole(snap.Role); err == nil {
			s.role = role
		}
	}
	if snap.Template != s.tmpl {
		s.console.Note("snapshot was saved with template %q, session uses %q", snap.Template, s.tmpl)
	}

	s.observer.OnEvent(ctx, observability.Event{
		Type:      EventSnapshotLoad,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "session.load",
		Data:      map[string]any{"name": args[0], "tokens": len(snap.Tokens), "origin": snap.SessionID},
	})
	s.console.Note("loaded %q; %d tokens used", args[0], s.manager.Used())
	return nil
}

// rewind truncates the context to n and drops turn boundaries and stack
// marks past it.
func (s *Session) rewind(ctx context.Context, n int) error {
	if err := s.manager.Rewind(ctx, n); err != nil {
		return err
	}
	s.turns = slices.DeleteFunc(s.turns, func(t int) bool { return t >= n })
	s.marks = slices.DeleteFunc(s.marks, func(m int) bool { return m > n })
	return nil
}

func percent(used, capacity int) float64 {
	if capacity == 0 {
		return 0
	}
	return float64(used) * 100 / float64(capacity)
}
