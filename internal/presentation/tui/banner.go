package tui

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
)

// PrintBanner writes the enginegate banner to w, coloured when w is a terminal.
func PrintBanner(w io.Writer) {
	out := termenv.NewOutput(w)
	lines := []struct {
		text  string
		color string
	}{
		{"                  _                         _", "#818cf8"},
		{"   ___ _ __   __ _(_)_ __   ___  __ _  __ _| |_ ___", "#a78bfa"},
		{"  / _ \\ '_ \\ / _` | | '_ \\ / _ \\/ _` |/ _` | __/ _ \\", "#c084fc"},
		{" |  __/ | | | (_| | | | | |  __/ (_| | (_| | ||  __/", "#e879f9"},
		{"  \\___|_| |_|\\__, |_|_| |_|\\___|\\__, |\\__,_|\\__\\___|", "#f472b6"},
		{"             |___/              |___/", "#fb7185"},
	}

	fmt.Fprintln(w)
	for _, l := range lines {
		fmt.Fprintln(w, out.String(l.text).Foreground(out.Color(l.color)))
	}
	fmt.Fprintln(w)
}
