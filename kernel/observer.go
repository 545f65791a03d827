package kernel

import "github.com/tailored-agentic-units/llamachat/observability"

// Kernel event types emitted during startup and teardown.
const (
	EventInit           observability.EventType = "kernel.init"
	EventContextWarning observability.EventType = "kernel.context.warning"
	EventRunStart       observability.EventType = "kernel.run.start"
	EventRunComplete    observability.EventType = "kernel.run.complete"
	EventClose          observability.EventType = "kernel.close"
)
