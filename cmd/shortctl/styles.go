package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/MikhailRaia/shortlinks/internal/display"
)

// Badge colours follow the medal they name.
var badgeColors = map[string]lipgloss.Color{
	"gold":   lipgloss.Color("#FFD700"),
	"silver": lipgloss.Color("#C0C0C0"),
	"bronze": lipgloss.Color("#CD7F32"),
}

type styles struct {
	header lipgloss.Style
	badges map[string]lipgloss.Style
}

// newStyles renders for out, so colour is dropped when out is not a terminal.
func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	s := styles{
		header: r.NewStyle().Bold(true),
		badges: make(map[string]lipgloss.Style, len(badgeColors)),
	}
	for name, color := range badgeColors {
		s.badges[name] = r.NewStyle().Bold(true).Foreground(color)
	}
	return s
}

func (s styles) badge(rank int) string {
	name := display.RankBadge(rank)
	if style, ok := s.badges[name]; ok {
		return style.Render(name)
	}
	return name
}
