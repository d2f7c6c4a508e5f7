package session

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/eventloop"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/google/uuid"
)

// DefaultLockKey is the distributed lock key guarding the engine when WithLocker is used.
const DefaultLockKey = "engine"

const readChunkSize = 4096

// Manager is the admission queue. It lets exactly one session launch and talk to the
// engine at a time; later requests wait for the previous session's ready signal.
// It owns no goroutine: every method must be called on the event loop.
type Manager struct {
	loop      *eventloop.Loop
	listener  ports.ConnSource
	launcher  ports.ProcessLauncher
	presenter ports.Presenter

	locker  ports.DistributedLocker
	lockKey string
	lockTTL time.Duration
	ctx     context.Context

	hooks  domain.LifecycleHooks
	fatal  func(error)
	logger *slog.Logger

	queue []*Session
}

// Option configures the Manager.
type Option func(*Manager)

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithPresenter configures who shows spawn errors to the user.
func WithPresenter(p ports.Presenter) Option {
	return func(m *Manager) {
		m.presenter = p
	}
}

// WithLocker makes the active session hold a distributed lock while the engine runs,
// so several launchers on one machine still run a single engine.
func WithLocker(locker ports.DistributedLocker, ttl time.Duration) Option {
	return func(m *Manager) {
		m.locker = locker
		m.lockTTL = ttl
	}
}

// WithLockKey overrides DefaultLockKey.
func WithLockKey(key string) Option {
	return func(m *Manager) {
		m.lockKey = key
	}
}

// WithContext bounds background work such as waiting for the distributed lock.
func WithContext(ctx context.Context) Option {
	return func(m *Manager) {
		m.ctx = ctx
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(m *Manager) {
		m.hooks = hooks
	}
}

// WithFatalHandler replaces the default reaction to a listener bind failure
// (present, log and exit the process).
func WithFatalHandler(fn func(error)) Option {
	return func(m *Manager) {
		m.fatal = fn
	}
}

// NewManager creates the admission queue around the shared listener and launcher.
func NewManager(loop *eventloop.Loop, listener ports.ConnSource, launcher ports.ProcessLauncher, opts ...Option) *Manager {
	m := &Manager{
		loop:     loop,
		listener: listener,
		launcher: launcher,
		lockKey:  DefaultLockKey,
		lockTTL:  30 * time.Second,
		ctx:      context.Background(),
		logger:   logging.NewNop(), // Default to no-op
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.fatal == nil {
		m.fatal = m.exit
	}
	return m
}

// NewSession creates a session around h. The shared listener is bound on first use;
// failing to bind is fatal.
func (m *Manager) NewSession(h Handler, opts ...SessionOption) *Session {
	if _, err := m.listener.EnsureListening(); err != nil {
		m.fatal(err)
	}
	s := &Session{
		id:      uuid.NewString(),
		manager: m,
		handler: h,
		state:   domain.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RequestStart admits s. If nothing is queued, s launches right away. If allowPreemption
// is set and the last queued session is still waiting and could be removed, that session
// is dropped in favour of s. Otherwise s waits for the last queued session to be ready.
func (m *Manager) RequestStart(s *Session, allowPreemption bool) {
	if s.queued || s.state != domain.StateIdle {
		m.logger.Warn("Session already requested", "session_id", s.id, "state", s.state)
		return
	}
	m.requestStart(s, allowPreemption)
}

func (m *Manager) requestStart(s *Session, allowPreemption bool) {
	if len(m.queue) == 0 {
		m.enqueue(s)
		m.start(s)
		return
	}

	tail := m.queue[len(m.queue)-1]
	if allowPreemption && tail.state == domain.StateIdle && tail.handler.CouldBeRemoved() {
		m.queue = m.queue[:len(m.queue)-1]
		m.preempt(tail)
		m.requestStart(s, allowPreemption)
		return
	}

	m.enqueue(s)
	if tail.readyFired {
		// The tail finished inside the current callback and is only waiting for disposal.
		m.start(s)
		return
	}

	var cancel func()
	cancel = tail.OnReady(func() {
		cancel()
		s.waitCancel = nil
		m.start(s)
	})
	s.waitCancel = cancel
}

func (m *Manager) enqueue(s *Session) {
	s.queued = true
	m.queue = append(m.queue, s)
	m.emitSession(s, domain.EventQueued)
}

// Snapshot describes the queue, head first.
func (m *Manager) Snapshot() []domain.SessionInfo {
	infos := make([]domain.SessionInfo, 0, len(m.queue))
	for i, s := range m.queue {
		infos = append(infos, s.info(i))
	}
	return infos
}

// Active returns the session holding the engine slot, or nil.
func (m *Manager) Active() *Session {
	for _, s := range m.queue {
		if s.state.Active() {
			return s
		}
	}
	return nil
}

// Len returns the number of queued sessions, including one pending disposal.
func (m *Manager) Len() int {
	return len(m.queue)
}

func (m *Manager) start(s *Session) {
	if active := m.Active(); active != nil && active != s {
		// Cannot happen while sessions only start from the ready chain.
		m.logger.Error("Refusing to start a second engine session", "session_id", s.id, "active_id", active.id)
		return
	}
	s.state = domain.StateStarting
	m.emitSession(s, domain.EventStarting)

	if m.locker == nil {
		m.launch(s)
		return
	}

	go func() {
		unlock, err := m.locker.Lock(m.ctx, m.lockKey, m.lockTTL)
		m.loop.Post(func() {
			if err != nil {
				m.onSpawnError(s, &domain.SpawnError{
					Path: m.launcher.Path(),
					Code: domain.UnknownError,
					Err:  fmt.Errorf("%w: %v", domain.ErrLockAcquire, err),
				})
				return
			}
			if s.state != domain.StateStarting {
				m.releaseLock(s.id, unlock)
				return
			}
			s.unlock = unlock
			m.launch(s)
		})
	}()
}

func (m *Manager) launch(s *Session) {
	if err := m.listener.Subscribe(func() { m.onNewConnection(s) }); err != nil {
		m.logger.Error("Engine listener subscription failed", "session_id", s.id, "err", err)
	} else {
		s.subscribed = true
	}
	s.conn = nil

	port, err := m.listener.EnsureListening()
	if err != nil {
		m.fatal(err)
	}

	args := s.handler.Arguments(port)
	m.logger.Info("Launching engine", "session_id", s.id, "path", m.launcher.Path(), "port", port)
	m.launcher.Launch(args, func(err *domain.SpawnError) {
		m.loop.Post(func() { m.onSpawnError(s, err) })
	})
	s.hasStarted = true
}

func (m *Manager) onNewConnection(s *Session) {
	if s.conn != nil || s.state != domain.StateStarting {
		return
	}
	conn := m.listener.NextPending()
	if conn == nil {
		// Spurious wake: stay registered for the real connection.
		return
	}
	m.listener.Unsubscribe()
	s.subscribed = false

	s.conn = conn
	s.out = newOutbox()
	s.reading = true
	s.state = domain.StateConnected
	m.emitSession(s, domain.EventConnected)
	m.logger.Info("Engine connected", "session_id", s.id, "remote", conn.RemoteAddr().String())

	m.readPump(s, conn)
	m.writePump(s, conn, s.out)
	s.SendRaw(nil) // flush what was queued before the engine connected
	s.handler.FirstSend(s)
}

func (m *Manager) readPump(s *Session, conn net.Conn) {
	go func() {
		buf := make([]byte, readChunkSize)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				chunk := append([]byte(nil), buf[:n]...)
				m.loop.Post(func() { m.onClientRead(s, conn, chunk) })
			}
			if err != nil {
				m.loop.Post(func() { m.onDisconnect(s) })
				return
			}
		}
	}()
}

func (m *Manager) onClientRead(s *Session, conn net.Conn, chunk []byte) {
	if !s.reading || s.conn != conn || len(chunk) == 0 {
		return
	}
	s.readBuf = append(s.readBuf, chunk...)
	s.handler.ClientRead(s)
}

// onDisconnect tears s down: stop reading, run the disconnect hook, signal ready,
// release the socket and hand s to deferred disposal. Repeated calls are ignored.
func (m *Manager) onDisconnect(s *Session) {
	if s.state == domain.StateFinished {
		return
	}
	s.reading = false
	if s.subscribed {
		m.listener.Unsubscribe()
		s.subscribed = false
	}

	s.handler.ClientDisconnect(s)

	s.state = domain.StateFinished
	m.emitSession(s, domain.EventFinished)
	m.logger.Info("Engine session finished", "session_id", s.id)

	if s.unlock != nil {
		m.releaseLock(s.id, s.unlock)
		s.unlock = nil
	}
	m.emitReady(s)

	if s.out != nil {
		s.out.abort()
		s.out = nil
	}
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	m.dispose(s)
}

func (m *Manager) onSpawnError(s *Session, err *domain.SpawnError) {
	if s.state == domain.StateFinished {
		m.logger.Debug("Ignoring engine error after session end", "session_id", s.id, "code", err.Code)
		return
	}
	m.logger.Error("Engine failed", "session_id", s.id, "code", int(err.Code), "err", err)

	if m.hooks.OnSpawnError != nil {
		m.hooks.OnSpawnError(m.ctx, &domain.SpawnErrorEvent{
			EventBase: m.base(s, domain.EventSpawnError),
			Err:       err,
		})
	}
	s.spawnErr.emit(err)
	if m.presenter != nil {
		m.presenter.PresentSpawnError(err)
	}
	m.onDisconnect(s)
}

func (m *Manager) preempt(s *Session) {
	if s.waitCancel != nil {
		s.waitCancel()
		s.waitCancel = nil
	}
	s.state = domain.StateFinished
	m.emitSession(s, domain.EventPreempted)
	m.logger.Info("Waiting session preempted", "session_id", s.id)
	m.emitReady(s)
	m.dispose(s)
}

func (m *Manager) emitReady(s *Session) {
	if s.readyFired {
		return
	}
	s.readyFired = true
	s.ready.emit(struct{}{})
}

// dispose drops s once the current callback has returned, never from inside it.
func (m *Manager) dispose(s *Session) {
	m.loop.Defer(func() {
		for i, other := range m.queue {
			if other == s {
				m.queue = append(m.queue[:i], m.queue[i+1:]...)
				break
			}
		}
		s.queued = false
		s.disposed = true
		s.sendBuf = nil
		s.readBuf = nil
	})
}

func (m *Manager) releaseLock(id string, unlock ports.UnlockFunc) {
	go func() {
		if err := unlock(m.ctx); err != nil {
			m.logger.Warn("Failed to release engine lock (will expire via TTL)",
				"session_id", id,
				"err", err,
			)
		}
	}()
}

func (m *Manager) exit(err error) {
	if m.presenter != nil {
		m.presenter.PresentFatal(err)
	}
	m.logger.Error("Engine listener unavailable", "err", err)
	os.Exit(1)
}

func (m *Manager) base(s *Session, t domain.EventType) domain.EventBase {
	return domain.EventBase{Timestamp: time.Now(), Type: t, SessionID: s.id}
}

func (m *Manager) emitSession(s *Session, t domain.EventType) {
	if m.hooks.OnSessionEvent == nil {
		return
	}
	m.hooks.OnSessionEvent(m.ctx, &domain.SessionEvent{
		EventBase:  m.base(s, t),
		State:      s.state,
		QueueDepth: len(m.queue),
	})
}

func (m *Manager) emitTransfer(s *Session, t domain.EventType, n int) {
	if m.hooks.OnTransfer == nil {
		return
	}
	m.hooks.OnTransfer(m.ctx, &domain.TransferEvent{
		EventBase: m.base(s, t),
		Bytes:     n,
	})
}
