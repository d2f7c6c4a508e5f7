package session_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_StartsImmediatelyWhenQueueEmpty(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game"}
	s := f.newSession(h)

	assert.Equal(t, domain.StateIdle, s.State())
	assert.False(t, s.HasStarted())

	f.do(func() { s.Start(false) })

	assert.Equal(t, domain.StateStarting, s.State())
	assert.True(t, s.HasStarted())
	require.Len(t, f.launcher.launches, 1)
	assert.Equal(t, []string{"--port", "47123", "game"}, f.launcher.launches[0])
	assert.NotNil(t, f.listener.subscriber, "launching session listens for the engine")
}

func TestManager_QueueOrdering(t *testing.T) {
	f := newFixture(t)
	names := []string{"a", "b", "c", "d"}
	sessions := make([]*session.Session, len(names))
	for i, name := range names {
		sessions[i] = f.newSession(&recordingHandler{name: name})
	}

	f.do(func() {
		for _, s := range sessions {
			s.Start(false)
		}
	})

	assert.Equal(t, []string{"a"}, f.launcher.names())
	for _, s := range sessions[1:] {
		assert.Equal(t, domain.StateIdle, s.State())
	}

	// Finish each head through a different path and check the next one starts.
	for i := range sessions {
		require.Equal(t, i+1, len(f.launcher.launches))
		require.Equal(t, domain.StateStarting, sessions[i].State())
		assert.Equal(t, 1, f.activeCount())

		if i%2 == 0 {
			engine := f.listener.connect(t)
			f.pump(t, func() bool { return sessions[i].State() == domain.StateConnected })
			_ = engine.Close()
		} else {
			report := f.launcher.reports[i]
			report(&domain.SpawnError{Path: f.launcher.Path(), Code: domain.FailedToStart})
		}
		f.pump(t, func() bool { return sessions[i].Disposed() })
	}

	assert.Equal(t, names, f.launcher.names())
	assert.Zero(t, f.manager.Len())
	assert.Zero(t, f.activeCount())
}

func TestManager_AtMostOneActive(t *testing.T) {
	var f *fixture
	maxActive := 0
	hooks := domain.LifecycleHooks{
		OnSessionEvent: func(_ context.Context, _ *domain.SessionEvent) {
			if n := f.activeCount(); n > maxActive {
				maxActive = n
			}
		},
	}
	f = newFixture(t, session.WithLifecycleHooks(hooks))

	rng := rand.New(rand.NewSource(7))
	var all []*session.Session
	for round := 0; round < 30; round++ {
		switch rng.Intn(3) {
		case 0, 1:
			s := f.newSession(&recordingHandler{name: fmt.Sprintf("s%d", round), removable: rng.Intn(2) == 0})
			all = append(all, s)
			allow := rng.Intn(2) == 0
			f.do(func() { s.Start(allow) })
		case 2:
			var active *session.Session
			f.do(func() { active = f.manager.Active() })
			if active == nil {
				continue
			}
			idx := len(f.launcher.reports) - 1
			f.launcher.reports[idx](&domain.SpawnError{Code: domain.Crashed})
			f.pump(t, func() bool { return active.Disposed() })
		}
		assert.LessOrEqual(t, f.activeCount(), 1)
	}
	assert.Equal(t, 1, maxActive)
	assert.NotEmpty(t, all)
}

func TestManager_Preemption(t *testing.T) {
	f := newFixture(t)
	head := f.newSession(&recordingHandler{name: "head", removable: true})
	waiting := f.newSession(&recordingHandler{name: "waiting"})
	stale := f.newSession(&recordingHandler{name: "stale", removable: true})
	fresh := f.newSession(&recordingHandler{name: "fresh"})

	staleReady := 0
	f.do(func() {
		head.Start(false)
		waiting.Start(false)
		stale.Start(false)
		stale.OnReady(func() { staleReady++ })
		fresh.Start(true)
	})

	assert.True(t, stale.Disposed(), "preempted session is disposed")
	assert.Equal(t, domain.StateFinished, stale.State())
	assert.False(t, stale.HasStarted())
	assert.Equal(t, 1, staleReady, "preemption hands off through the ready signal")

	var ids []string
	for _, info := range f.manager.Snapshot() {
		ids = append(ids, info.ID)
	}
	assert.Equal(t, []string{"head", "waiting", "fresh"}, ids)

	// The stale request must not be chained any more: finishing the line runs waiting then fresh.
	f.launcher.reports[0](&domain.SpawnError{Code: domain.FailedToStart})
	f.pump(t, func() bool { return waiting.State() == domain.StateStarting })
	f.launcher.reports[1](&domain.SpawnError{Code: domain.FailedToStart})
	f.pump(t, func() bool { return fresh.State() == domain.StateStarting })

	assert.Equal(t, []string{"head", "waiting", "fresh"}, f.launcher.names())
}

func TestManager_PreemptionRequiresOptIn(t *testing.T) {
	t.Run("Caller Did Not Allow", func(t *testing.T) {
		f := newFixture(t)
		head := f.newSession(&recordingHandler{name: "head"})
		tail := f.newSession(&recordingHandler{name: "tail", removable: true})
		next := f.newSession(&recordingHandler{name: "next"})

		f.do(func() {
			head.Start(false)
			tail.Start(false)
			next.Start(false)
		})
		assert.Equal(t, 3, f.manager.Len())
		assert.False(t, tail.Disposed())
	})

	t.Run("Tail Not Removable", func(t *testing.T) {
		f := newFixture(t)
		head := f.newSession(&recordingHandler{name: "head"})
		tail := f.newSession(&recordingHandler{name: "tail"})
		next := f.newSession(&recordingHandler{name: "next"})

		f.do(func() {
			head.Start(false)
			tail.Start(false)
			next.Start(true)
		})
		assert.Equal(t, 3, f.manager.Len())
	})

	t.Run("Running Head Is Never Displaced", func(t *testing.T) {
		f := newFixture(t)
		head := f.newSession(&recordingHandler{name: "head", removable: true})
		next := f.newSession(&recordingHandler{name: "next"})

		f.do(func() {
			head.Start(false)
			next.Start(true)
		})
		assert.Equal(t, domain.StateStarting, head.State())
		assert.Equal(t, domain.StateIdle, next.State())
		assert.Equal(t, 2, f.manager.Len())
	})
}

func TestSession_FramingOnTheWire(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(&recordingHandler{name: "game"})
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })

	payload := bytes.Repeat([]byte{'p'}, 255)
	f.do(func() {
		s.Send([]byte("eseed"))
		s.Send(bytes.Repeat([]byte{'x'}, 256)) // dropped
		s.Send(payload)
	})

	assert.Equal(t, append([]byte{5}, []byte("eseed")...), readN(t, engine, 6))
	got := readN(t, engine, 256)
	assert.Equal(t, byte(255), got[0])
	assert.Equal(t, payload, got[1:])
}

func TestSession_BufferFlushOrdering(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game", handshake: []byte("hs")}
	s := f.newSession(h)

	f.do(func() {
		s.SendRaw([]byte("a"))
		s.Send([]byte("bc"))
		s.Start(false)
	})
	assert.Equal(t, []byte{'a', 2, 'b', 'c'}, s.Buffered())

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	f.do(func() { s.Send([]byte("d")) })

	want := []byte{'a', 2, 'b', 'c', 2, 'h', 's', 1, 'd'}
	assert.Equal(t, want, readN(t, engine, len(want)))
	assert.Empty(t, s.Buffered())
}

func TestSession_DemoLogMatchesWire(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "demo", handshake: []byte("TD")}
	s := f.newSession(h, session.WithDemoMode(true))
	plain := f.newSession(&recordingHandler{name: "plain"})

	f.do(func() {
		s.Send([]byte("before"))
		s.SendRaw([]byte{0xff})
		s.Start(false)
		plain.Start(false)
	})
	assert.Empty(t, s.Demo(), "nothing is recorded before it reaches the wire")

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	f.do(func() {
		s.Send([]byte("after"))
		s.Send(bytes.Repeat([]byte{'z'}, 300)) // dropped, so not recorded either
		s.SendRaw([]byte("raw"))
	})

	demo := s.Demo()
	wire := readN(t, engine, len(demo))
	assert.Equal(t, wire, demo)
	assert.True(t, bytes.HasPrefix(demo, append([]byte{6}, []byte("before")...)))
	assert.True(t, bytes.HasSuffix(demo, []byte("raw")))

	_ = engine.Close()
	f.pump(t, func() bool { return plain.State() == domain.StateStarting })
	f.do(func() { plain.SendRaw([]byte("x")) })
	assert.Empty(t, plain.Demo(), "only demo-mode sessions record")
}

func TestSession_IdempotentAccept(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game", handshake: []byte("hi")}
	s := f.newSession(h)
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })

	// A second signal while connected, with another connection waiting.
	second := f.listener.connect(t)
	defer second.Close()
	f.do(f.listener.lastSubscriber)
	f.do(f.listener.lastSubscriber)

	assert.Equal(t, 1, h.firstSends)
	assert.Len(t, f.listener.pending, 1, "the extra connection is left alone")
	assert.Equal(t, []byte{2, 'h', 'i'}, readN(t, engine, 3))
	assert.Equal(t, 1, f.listener.subscribes)
}

func TestSession_SpuriousWakeKeepsWaiting(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game"}
	s := f.newSession(h)
	f.do(func() { s.Start(false) })

	f.do(f.listener.lastSubscriber) // nothing pending
	assert.Equal(t, domain.StateStarting, s.State())
	assert.Zero(t, h.firstSends)

	f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	assert.Equal(t, 1, h.firstSends)
}

func TestSession_ClientRead(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game"}
	s := f.newSession(h)
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })

	_, err := engine.Write([]byte{2, 'T', 'L', 3, 'e'})
	require.NoError(t, err)
	f.pump(t, func() bool { return len(h.frames) == 1 })

	_, err = engine.Write([]byte{'n', 'd'})
	require.NoError(t, err)
	f.pump(t, func() bool { return len(h.frames) == 2 })

	assert.Equal(t, [][]byte{[]byte("TL"), []byte("end")}, h.frames)
	assert.Empty(t, s.ReadBuffer())
}

func TestSession_ReadyFiresOnceOnDisconnect(t *testing.T) {
	f := newFixture(t)
	var insideHook bool
	h := &recordingHandler{name: "game"}
	h.onDisc = func(s *session.Session) { insideHook = !s.Disposed() }
	s := f.newSession(h)

	ready := 0
	f.do(func() {
		s.OnReady(func() { ready++ })
		s.Start(false)
	})

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	_ = engine.Close()
	f.pump(t, func() bool { return s.Disposed() })

	// A crash report arriving after the fact changes nothing.
	f.launcher.reports[0](&domain.SpawnError{Code: domain.Crashed})
	f.loop.RunPending()

	assert.Equal(t, 1, ready)
	assert.Equal(t, 1, h.disconnects)
	assert.True(t, insideHook, "session is not disposed while its own callback runs")
	assert.Empty(t, f.presenter.spawnErrors)
	assert.False(t, s.Connected())
	assert.Nil(t, f.listener.subscriber)
}

func TestSession_SpawnErrorBehavesLikeDisconnect(t *testing.T) {
	f := newFixture(t)
	f.launcher.failWith = &domain.SpawnError{Path: f.launcher.Path(), Code: domain.FailedToStart, Err: errors.New("no such file")}

	h := &recordingHandler{name: "broken"}
	s := f.newSession(h)
	next := f.newSession(&recordingHandler{name: "next"})

	ready := 0
	var codes []domain.ProcessErrorCode
	f.do(func() {
		s.OnReady(func() { ready++ })
		s.OnSpawnError(func(err *domain.SpawnError) { codes = append(codes, err.Code) })
		s.Start(false)
		next.Start(false)
	})
	f.loop.RunPending()

	assert.Equal(t, 1, ready)
	assert.Equal(t, []domain.ProcessErrorCode{domain.FailedToStart}, codes)
	assert.Equal(t, 1, h.disconnects)
	require.Len(t, f.presenter.spawnErrors, 2, "one dialog per failed launch")
	assert.Equal(t, domain.FailedToStart, f.presenter.spawnErrors[0].Code)
	assert.True(t, s.Disposed())
	assert.Nil(t, f.listener.subscriber, "the failed session released the listener")

	// Queue advanced; the next session launched and failed the same way.
	assert.Equal(t, []string{"broken", "next"}, f.launcher.names())
	assert.True(t, next.Disposed())
}

func TestSession_CloseHangsUp(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game"}
	h.onFirstSend = func(s *session.Session) { s.Close() }
	s := f.newSession(h)
	f.do(func() { s.Start(false) })

	f.listener.connect(t)
	f.pump(t, func() bool { return s.Disposed() })
	assert.Equal(t, 1, h.disconnects)
}

func TestSession_StartTwiceIsIgnored(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(&recordingHandler{name: "game"})
	f.do(func() {
		s.Start(false)
		s.Start(false)
	})
	assert.Equal(t, 1, f.manager.Len())
	assert.Len(t, f.launcher.launches, 1)
}

func TestManager_RequestFromDisconnectHookStartsImmediately(t *testing.T) {
	f := newFixture(t)
	follow := f.newSession(&recordingHandler{name: "follow"})
	h := &recordingHandler{name: "first"}
	h.onDisc = func(*session.Session) { follow.Start(false) }
	first := f.newSession(h)

	f.do(func() { first.Start(false) })
	engine := f.listener.connect(t)
	f.pump(t, func() bool { return first.Connected() })
	_ = engine.Close()
	f.pump(t, func() bool { return first.Disposed() })

	assert.Equal(t, domain.StateStarting, follow.State())
	assert.Equal(t, []string{"first", "follow"}, f.launcher.names())
}

func TestManager_BindFailureIsFatal(t *testing.T) {
	var fatal []error
	f := newFixture(t, session.WithFatalHandler(func(err error) { fatal = append(fatal, err) }))
	f.listener.bindErr = errors.New("loopback unavailable")

	f.newSession(&recordingHandler{name: "game"})
	require.Len(t, fatal, 1)
	assert.EqualError(t, fatal[0], "loopback unavailable")
}

func TestManager_Snapshot(t *testing.T) {
	f := newFixture(t)
	a := f.newSession(&recordingHandler{name: "a"}, session.WithDemoMode(true))
	b := f.newSession(&recordingHandler{name: "b", removable: true})

	var infos []domain.SessionInfo
	f.do(func() {
		a.Start(false)
		b.Start(false)
		infos = f.manager.Snapshot()
	})

	require.Len(t, infos, 2)
	assert.Equal(t, domain.SessionInfo{ID: "a", State: domain.StateStarting, Position: 0, HasStarted: true, DemoMode: true}, infos[0])
	assert.Equal(t, domain.SessionInfo{ID: "b", State: domain.StateIdle, Position: 1, Preemptive: true}, infos[1])
}

func TestManager_WithLocker(t *testing.T) {
	locker := newFakeLocker()
	locker.gate = make(chan struct{})
	f := newFixture(t, session.WithLocker(locker, time.Second))

	s := f.newSession(&recordingHandler{name: "game"})
	f.do(func() { s.Start(false) })

	assert.Equal(t, domain.StateStarting, s.State())
	assert.Empty(t, f.launcher.launches, "launch waits for the lock")

	close(locker.gate)
	f.pump(t, func() bool { return len(f.launcher.launches) == 1 })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	_ = engine.Close()
	f.pump(t, func() bool { return s.Disposed() })

	select {
	case <-locker.released:
	case <-time.After(2 * time.Second):
		t.Fatal("lock not released")
	}
	locks, unlocks := locker.counts()
	assert.Equal(t, 1, locks)
	assert.Equal(t, 1, unlocks)
}

func TestSession_StalledEngineDoesNotBlockTheLoop(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "replay"}
	s := f.newSession(h, session.WithDemoMode(true))
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })

	// The engine never reads, so the socket buffers fill long before this is written.
	payload := make([]byte, 64<<20)
	sent := make(chan struct{})
	go func() {
		f.do(func() { s.SendRaw(payload) })
		close(sent)
	}()
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatal("SendRaw waited for an engine that is not reading")
	}

	var infos []domain.SessionInfo
	f.do(func() { infos = f.manager.Snapshot() })
	require.Len(t, infos, 1)
	assert.Equal(t, domain.StateConnected, infos[0].State)
	assert.Len(t, s.Demo(), len(payload), "the log records what was handed to the socket")

	// Hanging up fails the pending write and finishes the session.
	_ = engine.Close()
	f.pump(t, func() bool { return s.Disposed() })
	assert.Equal(t, 1, h.disconnects)
	assert.False(t, s.Connected())
}

func TestSession_CloseFlushesPendingWrites(t *testing.T) {
	f := newFixture(t)
	h := &recordingHandler{name: "game"}
	h.onFirstSend = func(s *session.Session) {
		s.Send([]byte("bye"))
		s.Close()
	}
	s := f.newSession(h)
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	assert.Equal(t, []byte{3, 'b', 'y', 'e'}, readN(t, engine, 4))
	f.pump(t, func() bool { return s.Disposed() })
	assert.Equal(t, 1, h.disconnects)
}

func TestSession_OnReadyAfterFinishStillRuns(t *testing.T) {
	f := newFixture(t)
	s := f.newSession(&recordingHandler{name: "game"})
	f.do(func() { s.Start(false) })

	engine := f.listener.connect(t)
	f.pump(t, func() bool { return s.Connected() })
	_ = engine.Close()
	f.pump(t, func() bool { return s.Disposed() })

	late, cancelled := 0, 0
	f.do(func() {
		s.OnReady(func() { late++ })
		cancel := s.OnReady(func() { cancelled++ })
		cancel()
	})
	assert.Equal(t, 1, late)
	assert.Zero(t, cancelled)
}
