package commands

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	dimStyle    = lipgloss.NewStyle().Faint(true)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// statusStyle colors a bless or phase status word.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case "updated", "succeeded", "unchanged":
		return okStyle
	case "missing", "failed":
		return errStyle
	default:
		return warnStyle
	}
}
