package cli

import "github.com/charmbracelet/lipgloss"

var (
	styleTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("255"))

	styleOK = lipgloss.NewStyle().
		Foreground(lipgloss.Color("34"))

	styleError = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	styleWarning = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	styleNode = lipgloss.NewStyle().
			Foreground(lipgloss.Color("228"))

	styleDim = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)
