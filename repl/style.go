package main

import "github.com/charmbracelet/lipgloss"

var (
	accentColor = lipgloss.Color("#8B5CF6")
	okColor     = lipgloss.Color("#10B981")
	errorColor  = lipgloss.Color("#EF4444")
	mutedColor  = lipgloss.Color("#64748B")
)

var (
	promptStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(accentColor).
			Bold(true).
			Underline(true)

	partitionStyle = lipgloss.NewStyle().Foreground(accentColor)

	keyStyle = lipgloss.NewStyle().Foreground(mutedColor)

	valueStyle = lipgloss.NewStyle().Bold(true)

	okStyle = lipgloss.NewStyle().Foreground(okColor)

	errorStyle = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
)
