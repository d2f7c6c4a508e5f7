package enginegate

import (
	"context"
	"log/slog"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/adapters/process"
	"github.com/aretw0/enginegate/pkg/adapters/tcp"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/eventloop"
	"github.com/aretw0/enginegate/pkg/session"
)

// Gate is the high-level entry point: one event loop, one loopback listener, one launcher
// and the admission queue wired together.
type Gate struct {
	loop     *eventloop.Loop
	listener *tcp.Listener
	launcher *process.Launcher
	manager  *session.Manager

	address      string
	launcherOpts []process.LauncherOption
	managerOpts  []session.Option
	logger       *slog.Logger
}

// Option defines a functional option for configuring the Gate.
type Option func(*Gate)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// WithListenAddress overrides tcp.DefaultAddress.
func WithListenAddress(addr string) Option {
	return func(g *Gate) {
		g.address = addr
	}
}

// WithLauncherOptions passes extra options to the process launcher.
func WithLauncherOptions(opts ...process.LauncherOption) Option {
	return func(g *Gate) {
		g.launcherOpts = append(g.launcherOpts, opts...)
	}
}

// WithManagerOptions passes extra options to the admission queue
// (presenter, hooks, distributed lock).
func WithManagerOptions(opts ...session.Option) Option {
	return func(g *Gate) {
		g.managerOpts = append(g.managerOpts, opts...)
	}
}

// New wires a Gate for the engine described by cfg. Call Run to start dispatching.
func New(cfg process.Config, opts ...Option) *Gate {
	g := &Gate{
		address: tcp.DefaultAddress,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.loop = eventloop.New(eventloop.WithLogger(g.logger))
	g.listener = tcp.NewListener(g.loop,
		tcp.WithAddress(g.address),
		tcp.WithLogger(g.logger),
	)

	launcherOpts := append(cfg.Options(), process.WithLogger(g.logger))
	g.launcher = process.NewLauncher(append(launcherOpts, g.launcherOpts...)...)

	managerOpts := append([]session.Option{session.WithLogger(g.logger)}, g.managerOpts...)
	g.manager = session.NewManager(g.loop, g.listener, g.launcher, managerOpts...)
	return g
}

// Listen binds the shared listener now instead of on the first session, so a bind
// failure surfaces as an error rather than through the fatal handler.
func (g *Gate) Listen() (int, error) {
	return g.listener.EnsureListening()
}

// Run dispatches loop callbacks until ctx is done.
func (g *Gate) Run(ctx context.Context) error {
	return g.loop.Run(ctx)
}

// Do runs fn on the loop with the admission queue and waits for it.
func (g *Gate) Do(ctx context.Context, fn func(m *session.Manager)) error {
	return g.loop.Do(ctx, func() { fn(g.manager) })
}

// Launch creates a session for h and requests its start. The returned session must only
// be touched from loop callbacks (see Do). An OnReady registered through Do after the
// session already finished still runs.
func (g *Gate) Launch(ctx context.Context, h session.Handler, allowPreemption bool, opts ...session.SessionOption) (*session.Session, error) {
	var s *session.Session
	err := g.Do(ctx, func(m *session.Manager) {
		s = m.NewSession(h, opts...)
		s.Start(allowPreemption)
	})
	return s, err
}

// Sessions returns the admission queue, head first. It is safe to call from any goroutine.
func (g *Gate) Sessions(ctx context.Context) ([]domain.SessionInfo, error) {
	var infos []domain.SessionInfo
	err := g.Do(ctx, func(m *session.Manager) {
		infos = m.Snapshot()
	})
	return infos, err
}

// Port returns the listener port, or 0 before the first bind.
func (g *Gate) Port() int {
	return g.listener.Port()
}

// EnginePath returns the executable the launcher runs.
func (g *Gate) EnginePath() string {
	return g.launcher.Path()
}

// Close stops the listener. The listener otherwise lives as long as the process.
func (g *Gate) Close() error {
	return g.listener.Close()
}
