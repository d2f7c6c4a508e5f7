package domain

import (
	"context"
	"time"
)

// EventType defines the category of the event.
type EventType string

const (
	EventQueued       EventType = "session_queued"
	EventStarting     EventType = "session_starting"
	EventConnected    EventType = "session_connected"
	EventFinished     EventType = "session_finished"
	EventPreempted    EventType = "session_preempted"
	EventSpawnError   EventType = "spawn_error"
	EventFrameDropped EventType = "frame_dropped"
	EventBytesSent    EventType = "bytes_sent"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
}

// SessionEvent describes a lifecycle transition of a session.
type SessionEvent struct {
	EventBase
	State      SessionState `json:"state"`
	QueueDepth int          `json:"queue_depth"`
}

// TransferEvent describes traffic on the engine socket.
type TransferEvent struct {
	EventBase
	Bytes int `json:"bytes"`
}

// SpawnErrorEvent carries a failed engine launch.
type SpawnErrorEvent struct {
	EventBase
	Err *SpawnError `json:"-"`
}

// LifecycleHooks defines callbacks for admission observability.
// They are invoked on the event loop goroutine and must not block.
type LifecycleHooks struct {
	OnSessionEvent func(context.Context, *SessionEvent)
	OnTransfer     func(context.Context, *TransferEvent)
	OnSpawnError   func(context.Context, *SpawnErrorEvent)
}
