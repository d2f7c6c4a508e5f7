package tui

import (
	"github.com/charmbracelet/glamour"
)

// NewRenderer returns a function that renders markdown using glamour.
// The style follows the terminal background.
func NewRenderer() func(string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return func(markdown string) (string, error) {
			return markdown, err
		}
	}

	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}
