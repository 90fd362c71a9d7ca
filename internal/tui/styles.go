package tui

import "github.com/charmbracelet/lipgloss"

var (
	accentColor    = lipgloss.Color("#E07A5F")
	secondaryColor = lipgloss.Color("#81B29A")
	mutedColor     = lipgloss.Color("#7B8794")

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	userLabelStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true)

	assistantLabelStyle = lipgloss.NewStyle().
				Foreground(secondaryColor).
				Bold(true)

	actionStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	stateStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#3D405B")).
			Foreground(lipgloss.Color("#F4F1DE")).
			Padding(0, 1)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F2CC8F"))

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3D405B"))
)
