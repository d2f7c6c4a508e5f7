package ports

import (
	"net"

	"github.com/aretw0/enginegate/pkg/domain"
)

// ConnSource is the shared loopback listener the engine connects back to.
type ConnSource interface {
	// EnsureListening binds on first use and returns the port on every call.
	EnsureListening() (int, error)

	// Subscribe registers the single consumer of the "new connection" signal.
	// It returns domain.ErrListenerBusy if another consumer is registered.
	Subscribe(fn func()) error

	// Unsubscribe removes the current consumer, if any.
	Unsubscribe()

	// NextPending takes the pending connection, or returns nil if there is none.
	NextPending() net.Conn
}

// ProcessLauncher starts the engine executable.
type ProcessLauncher interface {
	// Launch starts the engine with args without waiting for it.
	// Failures are delivered through report, possibly from another goroutine.
	Launch(args []string, report func(*domain.SpawnError))

	// Path returns the executable that Launch runs.
	Path() string
}

// Presenter shows failures to the user. How it does so is up to the implementation.
type Presenter interface {
	PresentSpawnError(err *domain.SpawnError)
	PresentFatal(err error)
}
