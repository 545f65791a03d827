package session

import "github.com/tailored-agentic-units/llamachat/observability"

// Session event types.
const (
	EventStart         observability.EventType = "session.start"
	EventTurnStart     observability.EventType = "session.turn.start"
	EventTurnComplete  observability.EventType = "session.turn.complete"
	EventTurnFailed    observability.EventType = "session.turn.failed"
	EventCommand       observability.EventType = "session.command"
	EventSnapshotSaved observability.EventType = "session.snapshot.saved"
	EventSnapshotLoad  observability.EventType = "session.snapshot.loaded"
	EventEnd           observability.EventType = "session.end"
)
