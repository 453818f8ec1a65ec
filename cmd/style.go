package cmd

import "github.com/charmbracelet/lipgloss"

var (
	headerColor   = lipgloss.Color("#F780FF") // Bright pink
	questionColor = lipgloss.Color("#8BE9FD") // Cyan
	answerColor   = lipgloss.Color("#E9E9F4") // Light purple/white
	contextColor  = lipgloss.Color("#6272A4") // Muted purple
	errorColor    = lipgloss.Color("#FF5555") // Red
	successColor  = lipgloss.Color("#50FA7B") // Green
)

var (
	headerStyle   = lipgloss.NewStyle().Foreground(headerColor).Bold(true)
	questionStyle = lipgloss.NewStyle().Foreground(questionColor).Italic(true)
	answerStyle   = lipgloss.NewStyle().Foreground(answerColor)
	contextStyle  = lipgloss.NewStyle().Foreground(contextColor).Italic(true)
	errorStyle    = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(successColor)
	labelStyle    = lipgloss.NewStyle().Foreground(contextColor).Width(18)
)
