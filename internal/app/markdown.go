package app

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

// renderFunc formats an assistant answer for display.
type renderFunc func(string) string

func plainText(s string) string {
	return strings.TrimRight(s, "\n") + "\n"
}

// newRenderer returns a glamour markdown renderer when out is a terminal and
// plain text otherwise, so piped output stays free of escape codes.
func newRenderer(out io.Writer) renderFunc {
	file, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(file.Fd())) {
		return plainText
	}

	width := 80
	if w, _, err := term.GetSize(int(file.Fd())); err == nil && w > 20 {
		width = w - 4
	}
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return plainText
	}
	return func(s string) string {
		rendered, err := renderer.Render(s)
		if err != nil {
			return plainText(s)
		}
		return rendered
	}
}
