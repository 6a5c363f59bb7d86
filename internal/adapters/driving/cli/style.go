package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// palette follows the terminal UI theme colours.
var palette = struct {
	primary, muted, success, warning, danger lipgloss.Color
}{
	primary: lipgloss.Color("#7C3AED"),
	muted:   lipgloss.Color("#6C7086"),
	success: lipgloss.Color("#A6E3A1"),
	warning: lipgloss.Color("#F9E2AF"),
	danger:  lipgloss.Color("#F38BA8"),
}

// Styles holds the styles used for command output.
type Styles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
}

func colourStyles() Styles {
	return Styles{
		Title:   lipgloss.NewStyle().Bold(true).Foreground(palette.primary),
		Label:   lipgloss.NewStyle().Bold(true),
		Muted:   lipgloss.NewStyle().Foreground(palette.muted),
		Success: lipgloss.NewStyle().Foreground(palette.success),
		Warning: lipgloss.NewStyle().Foreground(palette.warning),
		Error:   lipgloss.NewStyle().Bold(true).Foreground(palette.danger),
	}
}

func plainStyles() Styles {
	plain := lipgloss.NewStyle()
	return Styles{Title: plain, Label: plain, Muted: plain, Success: plain, Warning: plain, Error: plain}
}

// styleFor returns colour styles when w is a terminal and colour is allowed.
func styleFor(w io.Writer) Styles {
	if noColor || os.Getenv("NO_COLOR") != "" {
		return plainStyles()
	}
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return plainStyles()
	}
	return colourStyles()
}

// truncate shortens s to at most n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
