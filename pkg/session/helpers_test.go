package session_test

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/eventloop"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/aretw0/enginegate/pkg/session"
	"github.com/stretchr/testify/require"
)

// fakeListener is a loop-confined ports.ConnSource whose connections are real loopback sockets.
type fakeListener struct {
	loop           *eventloop.Loop
	port           int
	bindErr        error
	subscriber     func()
	lastSubscriber func()
	pending        []net.Conn
	subscribes     int
}

func (f *fakeListener) EnsureListening() (int, error) {
	return f.port, f.bindErr
}

func (f *fakeListener) Subscribe(fn func()) error {
	if f.subscriber != nil {
		return domain.ErrListenerBusy
	}
	f.subscriber = fn
	f.lastSubscriber = fn
	f.subscribes++
	return nil
}

func (f *fakeListener) Unsubscribe() {
	f.subscriber = nil
}

func (f *fakeListener) NextPending() net.Conn {
	if len(f.pending) == 0 {
		return nil
	}
	conn := f.pending[0]
	f.pending = f.pending[1:]
	return conn
}

// connect simulates the engine dialing back. It returns the engine's end of the socket.
func (f *fakeListener) connect(t *testing.T) net.Conn {
	t.Helper()
	server, client := tcpPair(t)
	f.pending = append(f.pending, server)
	if f.subscriber != nil {
		f.loop.Post(f.subscriber)
	}
	return client
}

// fakeLauncher records launches and lets tests fail them later.
type fakeLauncher struct {
	launches [][]string
	reports  []func(*domain.SpawnError)
	failWith *domain.SpawnError
}

func (f *fakeLauncher) Launch(args []string, report func(*domain.SpawnError)) {
	f.launches = append(f.launches, args)
	f.reports = append(f.reports, report)
	if f.failWith != nil {
		report(f.failWith)
	}
}

func (f *fakeLauncher) Path() string { return "/opt/engine/hwengine" }

// names returns the session name each launch was made for (last argument).
func (f *fakeLauncher) names() []string {
	out := make([]string, 0, len(f.launches))
	for _, args := range f.launches {
		out = append(out, args[len(args)-1])
	}
	return out
}

type fakePresenter struct {
	spawnErrors []*domain.SpawnError
	fatals      []error
}

func (p *fakePresenter) PresentSpawnError(err *domain.SpawnError) { p.spawnErrors = append(p.spawnErrors, err) }
func (p *fakePresenter) PresentFatal(err error)                   { p.fatals = append(p.fatals, err) }

// recordingHandler is a concrete session that sends an optional handshake and collects frames.
type recordingHandler struct {
	session.BaseHandler
	name        string
	removable   bool
	handshake   []byte
	firstSends  int
	reads       int
	frames      [][]byte
	disconnects int
	onFirstSend func(s *session.Session)
	onDisc      func(s *session.Session)
}

func (h *recordingHandler) Arguments(port int) []string {
	return []string{"--port", strconv.Itoa(port), h.name}
}

func (h *recordingHandler) FirstSend(s *session.Session) {
	h.firstSends++
	if h.handshake != nil {
		s.Send(h.handshake)
	}
	if h.onFirstSend != nil {
		h.onFirstSend(s)
	}
}

func (h *recordingHandler) ClientRead(s *session.Session) {
	h.reads++
	h.frames = append(h.frames, s.Frames()...)
}

func (h *recordingHandler) ClientDisconnect(s *session.Session) {
	h.disconnects++
	if h.onDisc != nil {
		h.onDisc(s)
	}
}

func (h *recordingHandler) CouldBeRemoved() bool { return h.removable }

type fixture struct {
	loop      *eventloop.Loop
	listener  *fakeListener
	launcher  *fakeLauncher
	presenter *fakePresenter
	manager   *session.Manager
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()
	loop := eventloop.New()
	f := &fixture{
		loop:      loop,
		listener:  &fakeListener{loop: loop, port: 47123},
		launcher:  &fakeLauncher{},
		presenter: &fakePresenter{},
	}
	base := []session.Option{session.WithPresenter(f.presenter)}
	f.manager = session.NewManager(loop, f.listener, f.launcher, append(base, opts...)...)
	return f
}

// do runs fn on the loop, including whatever it defers, from the test goroutine.
func (f *fixture) do(fn func()) {
	f.loop.Post(fn)
	f.loop.RunPending()
}

// pump drives the loop until cond holds.
func (f *fixture) pump(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.loop.RunPending()
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func (f *fixture) newSession(h *recordingHandler, opts ...session.SessionOption) *session.Session {
	return f.manager.NewSession(h, append([]session.SessionOption{session.WithID(h.name)}, opts...)...)
}

func (f *fixture) activeCount() int {
	n := 0
	for _, info := range f.manager.Snapshot() {
		if info.State.Active() {
			n++
		}
	}
	return n
}

func tcpPair(t *testing.T) (server, client net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	server, ok := <-accepted
	require.True(t, ok, "accept failed")

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})
	return server, client
}

func readN(t *testing.T, conn net.Conn, n int) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, n)
	_, err := io.ReadFull(conn, buf)
	require.NoError(t, err)
	return buf
}

// fakeLocker is a single-key in-process ports.DistributedLocker.
type fakeLocker struct {
	mu       sync.Mutex
	held     bool
	locks    int
	unlocks  int
	released chan struct{}
	gate     chan struct{} // when set, Lock waits for it before granting
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{released: make(chan struct{}, 16)}
}

func (l *fakeLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held = true
	l.locks++
	return func(ctx context.Context) error {
		l.mu.Lock()
		l.held = false
		l.unlocks++
		l.mu.Unlock()
		l.released <- struct{}{}
		return nil
	}, nil
}

func (l *fakeLocker) counts() (locks, unlocks int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locks, l.unlocks
}
