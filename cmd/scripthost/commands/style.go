package commands

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the colors of CLI output.
type Theme struct {
	Primary lipgloss.Color
	Success lipgloss.Color
	Failure lipgloss.Color
	Dim     lipgloss.Color
}

// DefaultTheme is the default theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00afff"),
	Success: lipgloss.Color("#00ff9f"),
	Failure: lipgloss.Color("#ff5f5f"),
	Dim:     lipgloss.Color("#6e7681"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Title lipgloss.Style
	Name  lipgloss.Style
	OK    lipgloss.Style
	Fail  lipgloss.Style
	Dim   lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Title: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		Name:  lipgloss.NewStyle().Width(16),
		OK:    lipgloss.NewStyle().Foreground(t.Success),
		Fail:  lipgloss.NewStyle().Bold(true).Foreground(t.Failure),
		Dim:   lipgloss.NewStyle().Foreground(t.Dim),
	}
}

func (s Styles) success(w io.Writer, name, detail string) {
	fmt.Fprintln(w, s.OK.Render("✓")+" "+s.Name.Render(name)+" "+s.Dim.Render(detail))
}

func (s Styles) failure(w io.Writer, name, detail string) {
	fmt.Fprintln(w, s.Fail.Render("✗")+" "+s.Name.Render(name)+" "+detail)
}
