package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/aretw0/enginegate/internal/logging"
	"github.com/aretw0/enginegate/pkg/ports"
	"github.com/aretw0/enginegate/pkg/session"
	"golang.org/x/sync/errgroup"
)

// Engine control messages.
const (
	msgPing = "?"
	msgPong = "!"
)

// Script is the session handler behind `enginegate run`. It sends a fixed handshake,
// answers engine pings, echoes inbound frames and saves the demo recording.
// Like every handler it is only called on the event loop.
type Script struct {
	session.BaseHandler

	Name        string
	ExtraArgs   []string
	Handshake   []string
	Preemptible bool

	out    io.Writer
	demos  ports.DemoStore
	saves  *errgroup.Group
	ctx    context.Context
	logger *slog.Logger
}

// ScriptEnv carries what every Script of one run shares.
type ScriptEnv struct {
	Ctx    context.Context
	Out    io.Writer
	Demos  ports.DemoStore
	Saves  *errgroup.Group
	Logger *slog.Logger
}

// NewScript builds a handler from a job description.
func NewScript(job Job, env ScriptEnv) *Script {
	if env.Logger == nil {
		env.Logger = logging.NewNop()
	}
	if env.Saves == nil {
		env.Saves = &errgroup.Group{}
	}
	if env.Ctx == nil {
		env.Ctx = context.Background()
	}
	return &Script{
		Name:        job.Name,
		ExtraArgs:   job.Args,
		Handshake:   job.Handshake,
		Preemptible: job.Preemptible,
		out:         env.Out,
		demos:       env.Demos,
		saves:       env.Saves,
		ctx:         env.Ctx,
		logger:      env.Logger,
	}
}

// Arguments puts the listener port first, then the job's own arguments.
func (h *Script) Arguments(port int) []string {
	return append([]string{strconv.Itoa(port)}, h.ExtraArgs...)
}

// FirstSend sends the handshake.
func (h *Script) FirstSend(s *session.Session) {
	for _, msg := range h.Handshake {
		s.Send([]byte(msg))
	}
}

// ClientRead consumes complete frames; partial frames stay buffered.
func (h *Script) ClientRead(s *session.Session) {
	for _, payload := range s.Frames() {
		if string(payload) == msgPing {
			s.Send([]byte(msgPong))
			continue
		}
		h.printf("%s > %s\n", h.Name, payload)
	}
}

// ClientDisconnect saves the demo recording in the background.
func (h *Script) ClientDisconnect(s *session.Session) {
	h.printf("%s: engine disconnected\n", h.Name)
	if !s.DemoMode() || h.demos == nil {
		return
	}

	id := h.Name
	if id == "" {
		id = s.ID()
	}
	demo := s.Demo()
	h.saves.Go(func() error {
		if err := h.demos.Save(h.ctx, id, demo); err != nil {
			return fmt.Errorf("failed to save demo %s: %w", id, err)
		}
		h.logger.Info("Demo saved", "demo_id", id, "bytes", len(demo))
		return nil
	})
}

// CouldBeRemoved lets a newer preempting job replace this one while it waits.
func (h *Script) CouldBeRemoved() bool {
	return h.Preemptible
}

func (h *Script) printf(format string, args ...any) {
	if h.out == nil {
		return
	}
	fmt.Fprintf(h.out, format, args...)
}
