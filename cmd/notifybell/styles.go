package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

var (
	colorBlue   = lipgloss.AdaptiveColor{Dark: "#5B9BD5", Light: "#2B6CB0"}
	colorGreen  = lipgloss.AdaptiveColor{Dark: "#6BCB77", Light: "#2F855A"}
	colorYellow = lipgloss.AdaptiveColor{Dark: "#FFD93D", Light: "#B7791F"}
	colorRed    = lipgloss.AdaptiveColor{Dark: "#FF6B6B", Light: "#C53030"}
	colorOrange = lipgloss.AdaptiveColor{Dark: "#FFA94D", Light: "#C05621"}
	colorPurple = lipgloss.AdaptiveColor{Dark: "#CC5DE8", Light: "#805AD5"}
	colorGray   = lipgloss.AdaptiveColor{Dark: "#868E96", Light: "#718096"}
	colorWhite  = lipgloss.AdaptiveColor{Dark: "#F8F9FA", Light: "#1A202C"}
	colorBorder = lipgloss.AdaptiveColor{Dark: "#495057", Light: "#E2E8F0"}
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite).
			Background(colorBlue).
			Padding(0, 1)

	badgeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(colorRed).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder)

	itemStyle = lipgloss.NewStyle().PaddingLeft(2)

	selectedStyle = lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(colorBlue).
			Border(lipgloss.NormalBorder(), false, false, false, true).
			BorderForeground(colorBlue)

	readStyle    = lipgloss.NewStyle().Foreground(colorGray)
	messageStyle = lipgloss.NewStyle().Foreground(colorGray).PaddingLeft(4)
	ageStyle     = lipgloss.NewStyle().Foreground(colorGray).Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(colorGray)
	errorStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle    = lipgloss.NewStyle().Foreground(colorYellow)
)

// categoryStyle colours the category marker of a row.
func categoryStyle(c notifications.Category) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true)
	switch c {
	case notifications.CategoryRequest:
		return base.Foreground(colorBlue)
	case notifications.CategoryDriver:
		return base.Foreground(colorOrange)
	case notifications.CategoryPickup:
		return base.Foreground(colorGreen)
	case notifications.CategoryPayment:
		return base.Foreground(colorYellow)
	case notifications.CategoryReview:
		return base.Foreground(colorPurple)
	case notifications.CategorySystem:
		return base.Foreground(colorRed)
	default:
		return base.Foreground(colorGray)
	}
}

var categoryIcons = map[notifications.Category]string{
	notifications.CategoryRequest: "◆",
	notifications.CategoryDriver:  "➤",
	notifications.CategoryPickup:  "✔",
	notifications.CategoryPayment: "$",
	notifications.CategoryReview:  "★",
	notifications.CategorySystem:  "!",
}

func categoryIcon(c notifications.Category) string {
	if icon, ok := categoryIcons[c]; ok {
		return icon
	}
	return "•"
}
