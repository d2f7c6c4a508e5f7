package session

import (
	"net"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/frame"
	"github.com/aretw0/enginegate/pkg/ports"
)

// Session is one request to run the engine.
// All methods must be called on the manager's event loop goroutine.
type Session struct {
	id       string
	manager  *Manager
	handler  Handler
	demoMode bool

	state      domain.SessionState
	queued     bool
	hasStarted bool
	subscribed bool // registered for the listener's new-connection signal
	reading    bool
	disposed   bool

	conn    net.Conn
	out     *outbox // drained by the connection's writer goroutine
	sendBuf []byte
	readBuf []byte
	demo    []byte

	ready      signal[struct{}]
	readyFired bool
	spawnErr   signal[*domain.SpawnError]

	waitCancel func() // drops the subscription to the predecessor's ready signal
	unlock     ports.UnlockFunc
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithDemoMode records every byte written to the engine.
func WithDemoMode(demo bool) SessionOption {
	return func(s *Session) {
		s.demoMode = demo
	}
}

// WithID overrides the generated session ID.
func WithID(id string) SessionOption {
	return func(s *Session) {
		s.id = id
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Handler returns the hooks the session was created with.
func (s *Session) Handler() Handler { return s.handler }

// State returns the lifecycle state.
func (s *Session) State() domain.SessionState { return s.state }

// HasStarted reports whether the engine was launched for this session.
func (s *Session) HasStarted() bool { return s.hasStarted }

// DemoMode reports whether outgoing bytes are recorded.
func (s *Session) DemoMode() bool { return s.demoMode }

// Connected reports whether the engine socket is held.
func (s *Session) Connected() bool { return s.conn != nil }

// Disposed reports whether the manager let go of the session.
func (s *Session) Disposed() bool { return s.disposed }

// Demo returns a copy of everything sent to the engine so far, in wire order.
// Bytes are recorded when they are handed to the connection's writer, so the tail of the
// log may never have reached an engine that hung up or stopped reading.
// It stays empty unless the session is in demo mode.
func (s *Session) Demo() []byte {
	return append([]byte(nil), s.demo...)
}

// Start asks the manager to run the session. See Manager.RequestStart.
func (s *Session) Start(allowPreemption bool) {
	s.manager.RequestStart(s, allowPreemption)
}

// OnReady registers fn for the ready signal, which fires exactly once when the session
// finishes (disconnect, spawn error or preemption). Registering after it fired runs fn
// once the current loop callback returns. The returned function removes the registration.
func (s *Session) OnReady(fn func()) func() {
	if s.readyFired {
		cancelled := false
		s.manager.loop.Defer(func() {
			if !cancelled {
				fn()
			}
		})
		return func() { cancelled = true }
	}
	return s.ready.subscribe(func(struct{}) { fn() })
}

// OnSpawnError registers fn for spawn failures.
func (s *Session) OnSpawnError(fn func(*domain.SpawnError)) func() {
	return s.spawnErr.subscribe(fn)
}

// Send frames payload and sends it. Payloads over frame.MaxPayload bytes are dropped.
func (s *Session) Send(payload []byte) {
	f, ok := frame.Encode(payload)
	if !ok {
		s.manager.logger.Debug("Dropping oversized engine message", "session_id", s.id, "size", len(payload))
		s.manager.emitTransfer(s, domain.EventFrameDropped, len(payload))
		return
	}
	s.SendRaw(f)
}

// SendRaw queues b for the engine, or buffers it until the engine connects.
// Buffered bytes always go out before b. It never waits for the socket.
func (s *Session) SendRaw(b []byte) {
	if s.conn == nil {
		s.sendBuf = append(s.sendBuf, b...)
		return
	}
	if len(s.sendBuf) > 0 {
		buffered := s.sendBuf
		s.sendBuf = nil
		s.write(buffered)
	}
	if len(b) > 0 {
		s.write(b)
	}
}

func (s *Session) write(b []byte) {
	s.out.push(append([]byte(nil), b...))
	if s.demoMode {
		s.demo = append(s.demo, b...)
	}
	s.manager.emitTransfer(s, domain.EventBytesSent, len(b))
}

// Buffered returns the bytes waiting for the engine to connect.
func (s *Session) Buffered() []byte {
	return append([]byte(nil), s.sendBuf...)
}

// ReadBuffer returns the accumulated inbound bytes that were not consumed yet.
func (s *Session) ReadBuffer() []byte {
	return s.readBuf
}

// Consume drops the first n bytes of the read buffer.
func (s *Session) Consume(n int) {
	if n >= len(s.readBuf) {
		s.readBuf = nil
		return
	}
	s.readBuf = s.readBuf[n:]
}

// Frames pops every complete inbound frame from the read buffer.
func (s *Session) Frames() [][]byte {
	payloads, rest := frame.Split(s.readBuf)
	if len(rest) == 0 {
		s.readBuf = nil
	} else {
		s.readBuf = append([]byte(nil), rest...)
	}
	return payloads
}

// Close hangs up on the engine once everything already sent has been written.
// The usual disconnect sequence follows.
func (s *Session) Close() {
	if s.out != nil {
		s.out.close()
	}
}

func (s *Session) info(position int) domain.SessionInfo {
	return domain.SessionInfo{
		ID:         s.id,
		State:      s.state,
		Position:   position,
		HasStarted: s.hasStarted,
		DemoMode:   s.demoMode,
		Preemptive: s.handler.CouldBeRemoved(),
	}
}
