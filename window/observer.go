package window

import "github.com/tailored-agentic-units/llamachat/observability"

// Window event types.
const (
	EventCommit      observability.EventType = "window.commit"
	EventOverflow    observability.EventType = "window.overflow"
	EventInterrupted observability.EventType = "window.interrupted"
	EventImage       observability.EventType = "window.image"
	EventRewind      observability.EventType = "window.rewind"
)
