package observability

import (
	"io"
	"log/slog"

	"golang.org/x/term"
)

// NewLogger creates the process logger. When w is a terminal the output
// is human-readable text; when it is piped or redirected the output is
// JSON. verbose lowers the threshold to debug so LevelVerbose events
// (per-chunk commits, sampler setup) appear.
func NewLogger(w io.Writer, verbose bool) *slog.Logger {
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if verbose {
		options.Level = slog.LevelDebug
	}

	var handler slog.Handler
	if IsTerminal(w) {
		handler = slog.NewTextHandler(w, options)
	} else {
		handler = slog.NewJSONHandler(w, options)
	}
	return slog.New(handler)
}

// IsTerminal reports whether w is a file descriptor attached to a terminal.
func IsTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(int(f.Fd()))
}
