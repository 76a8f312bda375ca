package hostctx

import "github.com/charmbracelet/lipgloss"

type styles struct {
	title     lipgloss.Style
	header    lipgloss.Style
	path      lipgloss.Style
	meta      lipgloss.Style
	gutter    lipgloss.Style
	code      lipgloss.Style
	cursor    lipgloss.Style
	empty     lipgloss.Style
	errorText lipgloss.Style
}

func newStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true),
		header:    lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		path:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		meta:      lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		gutter:    lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		code:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		cursor:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("159")),
		empty:     lipgloss.NewStyle().Faint(true),
		errorText: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
	}
}
