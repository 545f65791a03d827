package observability

import "context"

// NoOpObserver discards all events. Components default to it so emitting
// an event never needs a nil check.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(context.Context, Event) {}

var (
	_ Observer = NoOpObserver{}
	_ Observer = (*MultiObserver)(nil)
	_ Observer = (*SlogObserver)(nil)
)
