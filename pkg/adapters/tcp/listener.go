package tcp

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/domain"
)

// DefaultAddress binds the loopback interface on an OS-assigned port.
const DefaultAddress = "127.0.0.1:0"

// Poster delivers callbacks to the goroutine that owns session state.
type Poster interface {
	Post(fn func())
}

// Listener implements ports.ConnSource on a loopback TCP socket.
// It keeps at most one accepted connection pending; the accept loop does not take
// another one from the OS until the pending connection has been handed out.
type Listener struct {
	addr   string
	poster Poster
	logger *slog.Logger

	mu         sync.Mutex
	ln         net.Listener
	port       int
	closed     bool
	subscriber func()

	pending chan net.Conn
	done    chan struct{}
}

// Option configures the Listener.
type Option func(*Listener)

// WithLogger configures a logger for the Listener.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Listener) {
		l.logger = logger
	}
}

// WithAddress overrides the bind address (tests only; the engine expects loopback).
func WithAddress(addr string) Option {
	return func(l *Listener) {
		l.addr = addr
	}
}

// NewListener creates an unbound listener. Nothing is bound until EnsureListening.
func NewListener(poster Poster, opts ...Option) *Listener {
	l := &Listener{
		addr:    DefaultAddress,
		poster:  poster,
		logger:  logging.NewNop(),
		pending: make(chan net.Conn, 1),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// EnsureListening binds the socket on the first call and returns its port on every call.
func (l *Listener) EnsureListening() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ln != nil {
		return l.port, nil
	}
	if l.closed {
		return 0, domain.ErrListenerClosed
	}

	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return 0, fmt.Errorf("unable to start the server: %w", err)
	}
	l.ln = ln
	l.port = ln.Addr().(*net.TCPAddr).Port
	l.logger.Debug("Engine listener bound", "addr", ln.Addr().String())

	go l.acceptLoop(ln)
	return l.port, nil
}

// Port returns the bound port, or 0 before EnsureListening succeeded.
func (l *Listener) Port() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.port
}

// Subscribe registers fn as the single consumer of the "new connection" signal.
// If a connection is already pending, fn is signalled right away.
func (l *Listener) Subscribe(fn func()) error {
	l.mu.Lock()
	if l.subscriber != nil {
		l.mu.Unlock()
		return domain.ErrListenerBusy
	}
	l.subscriber = fn
	hasPending := len(l.pending) > 0
	l.mu.Unlock()

	if hasPending {
		l.poster.Post(fn)
	}
	return nil
}

// Unsubscribe removes the current consumer.
func (l *Listener) Unsubscribe() {
	l.mu.Lock()
	l.subscriber = nil
	l.mu.Unlock()
}

// NextPending takes the pending connection without blocking.
func (l *Listener) NextPending() net.Conn {
	select {
	case conn := <-l.pending:
		return conn
	default:
		return nil
	}
}

// Close releases the socket. The launcher never calls it: the listener lives as long
// as the process. It exists so tests can run isolated listeners.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	close(l.done)

	var err error
	if l.ln != nil {
		err = l.ln.Close()
	}
	if conn := l.NextPending(); conn != nil {
		_ = conn.Close()
	}
	return err
}

func (l *Listener) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			l.logger.Warn("Accept failed", "err", err)
			continue
		}
		l.logger.Debug("Engine connection pending", "remote", conn.RemoteAddr().String())

		select {
		case l.pending <- conn:
		case <-l.done:
			_ = conn.Close()
			return
		}
		l.signal()
	}
}

func (l *Listener) signal() {
	l.mu.Lock()
	fn := l.subscriber
	l.mu.Unlock()

	if fn != nil {
		l.poster.Post(fn)
	}
}
