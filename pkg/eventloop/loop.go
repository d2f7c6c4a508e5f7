package eventloop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aretw0/enginegate/internal/logging"
)

// Loop runs posted callbacks one at a time, in posting order, on a single goroutine.
// State owned by the loop needs no locking as long as it is only touched from callbacks.
type Loop struct {
	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	// deferred is only touched from the dispatching goroutine.
	deferred []func()

	logger *slog.Logger
}

// Option configures the Loop.
type Option func(*Loop)

// WithLogger configures a logger for the Loop.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates an idle loop. Nothing is dispatched until Run or RunPending is called.
func New(opts ...Option) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post schedules fn to run on the loop. It never blocks and is safe from any goroutine.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Defer schedules fn to run right after the current callback returns.
// It must only be called from a callback running on the loop.
func (l *Loop) Defer(fn func()) {
	l.deferred = append(l.deferred, fn)
}

// Run dispatches callbacks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("Event loop started")
	for {
		l.RunPending()
		select {
		case <-ctx.Done():
			l.logger.Debug("Event loop stopped", "err", ctx.Err())
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// RunPending dispatches every queued callback, including the ones they post, and
// returns how many ran. Tests use it to drive the loop from their own goroutine.
func (l *Loop) RunPending() int {
	n := 0
	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return n
		}
		for _, fn := range batch {
			l.dispatch(fn)
			n++
		}
	}
}

// Do runs fn on the loop and waits for it to return.
// Calling Do from a loop callback deadlocks.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) dispatch(fn func()) {
	fn()
	for len(l.deferred) > 0 {
		batch := l.deferred
		l.deferred = nil
		for _, d := range batch {
			d()
		}
	}
}
