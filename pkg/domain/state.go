package domain

// SessionState is the lifecycle position of an engine session.
type SessionState string

const (
	StateIdle      SessionState = "idle"      // Queued, waiting for its turn
	StateStarting  SessionState = "starting"  // Engine spawned, waiting for connect-back
	StateConnected SessionState = "connected" // Engine socket accepted
	StateFinished  SessionState = "finished"  // Disconnected, failed or preempted
)

// Active reports whether the state occupies the single admission slot.
func (s SessionState) Active() bool {
	return s == StateStarting || s == StateConnected
}

// SessionInfo is a read-only snapshot of a queued session.
type SessionInfo struct {
	ID         string       `json:"id"`
	State      SessionState `json:"state"`
	Position   int          `json:"position"`
	HasStarted bool         `json:"has_started"`
	DemoMode   bool         `json:"demo_mode"`
	Preemptive bool         `json:"could_be_removed"`
}
