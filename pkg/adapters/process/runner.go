package process

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/domain"
)

// Launcher implements ports.ProcessLauncher for the engine executable.
type Launcher struct {
	binDir     string
	executable string
	forward    bool
	stdout     io.Writer
	stderr     io.Writer
	env        map[string]string
	logger     *slog.Logger
}

// LauncherOption configures the launcher.
type LauncherOption func(*Launcher)

// WithBinDir sets the directory that holds the engine executable.
func WithBinDir(dir string) LauncherOption {
	return func(l *Launcher) {
		l.binDir = dir
	}
}

// WithExecutable overrides the engine executable name.
func WithExecutable(name string) LauncherOption {
	return func(l *Launcher) {
		l.executable = name
	}
}

// WithForwardedOutput forwards the engine's stdout/stderr to ours (dev builds).
// Otherwise the engine output is discarded.
func WithForwardedOutput(forward bool) LauncherOption {
	return func(l *Launcher) {
		l.forward = forward
	}
}

// WithOutput sets where forwarded output goes (default os.Stdout / os.Stderr).
func WithOutput(stdout, stderr io.Writer) LauncherOption {
	return func(l *Launcher) {
		l.stdout = stdout
		l.stderr = stderr
	}
}

// WithEnv adds environment variables to the engine process.
func WithEnv(env map[string]string) LauncherOption {
	return func(l *Launcher) {
		l.env = env
	}
}

// WithLogger configures a logger for the launcher.
func WithLogger(logger *slog.Logger) LauncherOption {
	return func(l *Launcher) {
		l.logger = logger
	}
}

// NewLauncher creates a new engine launcher.
func NewLauncher(opts ...LauncherOption) *Launcher {
	l := &Launcher{
		executable: DefaultExecutable,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Path returns the executable Launch runs.
func (l *Launcher) Path() string {
	if l.binDir == "" {
		return l.executable
	}
	return filepath.Join(l.binDir, l.executable)
}

// Launch starts the engine without waiting for it.
// A start failure is reported with domain.FailedToStart before Launch returns; an engine
// killed by a signal later on is reported with domain.Crashed from the waiter goroutine.
// A normal exit, whatever its status, is not a spawn error.
func (l *Launcher) Launch(args []string, report func(*domain.SpawnError)) {
	path := l.Path()
	cmd := exec.Command(path, args...)

	if l.forward {
		cmd.Stdout = l.stdout
		cmd.Stderr = l.stderr
	}
	if len(l.env) > 0 {
		keys := make([]string, 0, len(l.env))
		for k := range l.env {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		env := cmd.Environ()
		for _, k := range keys {
			env = append(env, fmt.Sprintf("%s=%s", k, l.env[k]))
		}
		cmd.Env = env
	}

	if err := cmd.Start(); err != nil {
		l.logger.Warn("Engine failed to start", "path", path, "err", err)
		report(&domain.SpawnError{Path: path, Code: domain.FailedToStart, Err: err})
		return
	}
	pid := cmd.Process.Pid
	l.logger.Debug("Engine started", "path", path, "pid", pid, "args", args)

	go func() {
		err := cmd.Wait()
		state := cmd.ProcessState
		if state != nil && !state.Exited() {
			l.logger.Warn("Engine crashed", "pid", pid, "state", state.String())
			report(&domain.SpawnError{Path: path, Code: domain.Crashed, Err: err})
			return
		}
		if err != nil {
			l.logger.Debug("Engine exited", "pid", pid, "err", err)
			return
		}
		l.logger.Debug("Engine exited", "pid", pid)
	}()
}
