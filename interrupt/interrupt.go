// Package interrupt bridges asynchronous cancellation sources, such as
// SIGINT, to a flag the session worker polls between steps.
//
// The worker never blocks on the flag and never reads it inside an engine
// call. Cancellation is therefore cooperative: an interrupt takes effect
// at the next poll point, leaving engine state untorn.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
)

// Flag is a single-writer, single-reader cancellation signal.
// The zero value is ready to use.
type Flag struct {
	set atomic.Bool
}

// Raise sets the flag. Safe to call from any goroutine.
func (f *Flag) Raise() {
	f.set.Store(true)
}

// Raised reports whether the flag is set without clearing it.
func (f *Flag) Raised() bool {
	return f.set.Load()
}

// Consume reports whether the flag was set and clears it in the same
// atomic step, so one interrupt is observed exactly once.
func (f *Flag) Consume() bool {
	return f.set.Swap(false)
}

// Clear discards any pending interrupt.
func (f *Flag) Clear() {
	f.set.Store(false)
}

// Watch raises f every time one of sigs arrives until ctx is done.
// With no signals it watches os.Interrupt. The returned channel closes
// once the watcher goroutine has stopped and signal delivery has been
// restored.
func Watch(ctx context.Context, f *Flag, sigs ...os.Signal) <-chan struct{} {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt}
	}

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				f.Raise()
			}
		}
	}()
	return done
}
