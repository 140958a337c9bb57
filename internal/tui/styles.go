package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2196F3")).
			MarginBottom(1)

	labelStyle = lipgloss.NewStyle().Bold(true)

	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	bannerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			MarginBottom(1)

	errorBanner   = bannerStyle.BorderForeground(lipgloss.Color("196"))
	successBanner = bannerStyle.BorderForeground(lipgloss.Color("42"))
)
