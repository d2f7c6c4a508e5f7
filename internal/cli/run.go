package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/aretw0/enginegate"
	"github.com/aretw0/enginegate/internal/config"
	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/internal/presentation/tui"
	httpadapter "github.com/aretw0/enginegate/pkg/adapters/http"
	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/aretw0/enginegate/pkg/observability"
	"github.com/aretw0/enginegate/pkg/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// ErrSessionsFailed is returned when at least one engine could not be run.
var ErrSessionsFailed = errors.New("engine sessions failed")

const shutdownGrace = 5 * time.Second

// Job is one engine run requested on the command line.
type Job struct {
	Name      string
	Args      []string
	Handshake []string
	Demo      bool
	// Preemptible lets a later preempting job replace this one while it waits.
	Preemptible bool
	// Preempt replaces a waiting preemptible job instead of queueing behind it.
	Preempt bool
}

// Runner launches jobs through one gate and waits until each has finished or was preempted.
type Runner struct {
	Config    config.Config
	Out       io.Writer
	Presenter *tui.Presenter
	Backends  *Backends
	Logger    *slog.Logger
	// Registry receives the metrics; a private one is used when nil.
	Registry *prometheus.Registry
	// OnListen is called with the status server address once it is bound.
	OnListen func(addr string)
}

// Run executes jobs in order of admission. It returns ErrSessionsFailed (wrapped) when any
// engine failed to start or crashed.
func (r *Runner) Run(ctx context.Context, jobs []Job) error {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	reg := r.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	backends := r.Backends
	if backends == nil {
		b, err := NewBackends(r.Config)
		if err != nil {
			return err
		}
		defer b.Close()
		backends = b
	}

	metrics := observability.NewMetrics(reg)
	streams := httpadapter.NewStreamManager()

	managerOpts := []session.Option{
		session.WithContext(ctx),
		session.WithLifecycleHooks(observability.Combine(
			metrics.Hooks(),
			streams.Hooks(),
			observability.LogHooks(logger),
		)),
	}
	if r.Presenter != nil {
		managerOpts = append(managerOpts, session.WithPresenter(r.Presenter))
	}
	if backends.Locker != nil {
		managerOpts = append(managerOpts, session.WithLocker(backends.Locker, r.Config.Redis.LockTTL))
	}

	gate := enginegate.New(r.Config.Config,
		enginegate.WithLogger(logger),
		enginegate.WithManagerOptions(managerOpts...),
	)
	port, err := gate.Listen()
	if err != nil {
		if r.Presenter != nil {
			r.Presenter.PresentFatal(err)
		}
		return err
	}
	defer gate.Close()
	logger.Info("Engine listener ready", "port", port, "engine", gate.EnginePath())

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()

	g.Go(func() error {
		if err := gate.Run(loopCtx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if r.Config.StatusAddr != "" {
		srv := &http.Server{
			Addr: r.Config.StatusAddr,
			Handler: httpadapter.NewServer(gate,
				httpadapter.WithStreams(streams),
				httpadapter.WithDemoStore(backends.Demos),
				httpadapter.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
				httpadapter.WithLogger(logger),
			).Handler(),
		}
		if err := serveStatus(g, loopCtx, srv, r.OnListen); err != nil {
			stopLoop()
			_ = g.Wait()
			return err
		}
	}

	saves := &errgroup.Group{}
	env := ScriptEnv{Ctx: ctx, Out: r.Out, Demos: backends.Demos, Saves: saves, Logger: logger}

	allDone := make(chan struct{})
	remaining := len(jobs)
	failed := 0
	if remaining == 0 {
		close(allDone)
	}

	for _, job := range jobs {
		h := NewScript(job, env)
		err := gate.Do(ctx, func(m *session.Manager) {
			opts := []session.SessionOption{session.WithDemoMode(job.Demo)}
			if job.Name != "" {
				opts = append(opts, session.WithID(job.Name))
			}
			s := m.NewSession(h, opts...)
			s.OnSpawnError(func(*domain.SpawnError) { failed++ })
			s.OnReady(func() {
				remaining--
				if remaining == 0 {
					close(allDone)
				}
			})
			s.Start(job.Preempt)
		})
		if err != nil {
			break
		}
	}

	select {
	case <-allDone:
	case <-gctx.Done():
	}
	stopLoop()

	runErr := g.Wait()
	if err := saves.Wait(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil {
		return runErr
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrSessionsFailed, failed, len(jobs))
	}
	return nil
}

func serveStatus(g *errgroup.Group, ctx context.Context, srv *http.Server, onListen func(string)) error {
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("unable to start the status server: %w", err)
	}
	if onListen != nil {
		onListen(ln.Addr().String())
	}

	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return nil
}
