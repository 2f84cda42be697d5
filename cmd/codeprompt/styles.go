package main

import "github.com/charmbracelet/lipgloss"

var (
	accent = lipgloss.Color("#8BC34A")
	muted  = lipgloss.Color("#6b7785")
	warn   = lipgloss.Color("#FFC107")

	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	tagStyle       = lipgloss.NewStyle().Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(muted)
	skippedStyle   = lipgloss.NewStyle().Foreground(warn)
	separatorStyle = lipgloss.NewStyle().Foreground(muted)
	bodyStyle      = lipgloss.NewStyle().PaddingLeft(4).Foreground(muted)
)
