package commands

import "github.com/charmbracelet/lipgloss"

var (
	colorUser      = lipgloss.Color("#5FAFFF")
	colorAssistant = lipgloss.Color("#FF87AF")
	colorMuted     = lipgloss.Color("#808080")
	colorError     = lipgloss.Color("#FF5F5F")

	userLabelStyle      = lipgloss.NewStyle().Foreground(colorUser).Bold(true)
	assistantLabelStyle = lipgloss.NewStyle().Foreground(colorAssistant).Bold(true)
	infoStyle           = lipgloss.NewStyle().Foreground(colorMuted)
	errorStyle          = lipgloss.NewStyle().Foreground(colorError).Bold(true)
)

func userLabel() string {
	return userLabelStyle.Render("you")
}

func assistantLabel(name string) string {
	return assistantLabelStyle.Render(name)
}
