package tui

import (
	"fmt"
	"io"
	"os"

	"github.com/aretw0/enginegate/pkg/domain"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// Presenter shows engine failures to the user.
// On a terminal it renders a markdown dialog with glamour; elsewhere it prints plain lines.
type Presenter struct {
	w        io.Writer
	out      *termenv.Output
	markdown bool
	render   func(string) (string, error)
}

// Option configures a Presenter.
type Option func(*Presenter)

// WithMarkdown forces markdown rendering on or off.
func WithMarkdown(enabled bool) Option {
	return func(p *Presenter) {
		p.markdown = enabled
	}
}

// WithRenderer replaces the glamour renderer.
func WithRenderer(render func(string) (string, error)) Option {
	return func(p *Presenter) {
		p.render = render
	}
}

// NewPresenter writes to w. Markdown is enabled when w is a terminal.
func NewPresenter(w io.Writer, opts ...Option) *Presenter {
	p := &Presenter{
		w:        w,
		out:      termenv.NewOutput(w),
		markdown: IsTerminal(w),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.markdown && p.render == nil {
		p.render = NewRenderer()
	}
	return p
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// PresentSpawnError reports an engine that could not be run or died.
func (p *Presenter) PresentSpawnError(err *domain.SpawnError) {
	if p.markdown {
		md := fmt.Sprintf("# Engine error\n\nUnable to run engine at `%s`\n\n**Error code:** %d (%s)\n",
			err.Path, int(err.Code), err.Code)
		if err.Err != nil {
			md += fmt.Sprintf("\n> %v\n", err.Err)
		}
		p.print(md)
		return
	}
	fmt.Fprintln(p.w, p.out.String("Error:").Bold().Foreground(p.out.Color("#ef4444")),
		fmt.Sprintf("Unable to run engine at %s", err.Path))
	fmt.Fprintf(p.w, "Error code: %d (%s)\n", int(err.Code), err.Code)
	if err.Err != nil {
		fmt.Fprintln(p.w, err.Err)
	}
}

// PresentFatal reports an unrecoverable startup failure.
func (p *Presenter) PresentFatal(err error) {
	if p.markdown {
		p.print(fmt.Sprintf("# Fatal error\n\n%v\n", err))
		return
	}
	fmt.Fprintln(p.w, p.out.String("Fatal:").Bold().Foreground(p.out.Color("#ef4444")), err)
}

// PresentMarkdown renders md on terminals and prints it verbatim elsewhere.
func (p *Presenter) PresentMarkdown(md string) {
	if p.markdown {
		p.print(md)
		return
	}
	fmt.Fprint(p.w, md)
}

func (p *Presenter) print(md string) {
	rendered, err := p.render(md)
	if err != nil {
		fmt.Fprint(p.w, md)
		return
	}
	fmt.Fprint(p.w, rendered)
}
