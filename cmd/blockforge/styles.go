package main

import (
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/felixgeelhaar/blockforge/internal/domain/compilation"
)

// Theme colors (Catppuccin Mocha inspired).
var (
	colorPrimary = lipgloss.AdaptiveColor{Light: "#1e66f5", Dark: "#89b4fa"}
	colorSuccess = lipgloss.AdaptiveColor{Light: "#40a02b", Dark: "#a6e3a1"}
	colorError   = lipgloss.AdaptiveColor{Light: "#d20f39", Dark: "#f38ba8"}
	colorMuted   = lipgloss.AdaptiveColor{Light: "#6c6f85", Dark: "#6c7086"}
)

type cliStyles struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Success lipgloss.Style
	Error   lipgloss.Style
	Muted   lipgloss.Style
}

var styles = cliStyles{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(colorPrimary),
	Label:   lipgloss.NewStyle().Width(12),
	Success: lipgloss.NewStyle().Foreground(colorSuccess),
	Error:   lipgloss.NewStyle().Bold(true).Foreground(colorError),
	Muted:   lipgloss.NewStyle().Foreground(colorMuted),
}

var titleCaser = cases.Title(language.English)

// stateLabel renders a lifecycle state for display.
func stateLabel(s compilation.State) string {
	label := titleCaser.String(string(s))
	switch s {
	case compilation.StateCompleted, compilation.StateIdle:
		return styles.Success.Render(label)
	case compilation.StateFailed:
		return styles.Error.Render(label)
	default:
		return styles.Muted.Render(label)
	}
}

// row renders a labelled summary line.
func row(label, value string) string {
	return "  " + styles.Label.Render(label) + value + "\n"
}
