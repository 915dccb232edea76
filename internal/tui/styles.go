package tui

import "github.com/charmbracelet/lipgloss"

var (
	colorAmber  = lipgloss.Color("#FFBF00")
	colorRed    = lipgloss.Color("#FF4040")
	colorGreen  = lipgloss.Color("#00D75F")
	colorCyan   = lipgloss.Color("#00FFFF")
	colorGray   = lipgloss.Color("#666666")
	colorDark   = lipgloss.Color("#303030")
	colorWhite  = lipgloss.Color("#FFFFFF")
	colorOrange = lipgloss.Color("#FF8700")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	lampStyle = lipgloss.NewStyle().
			Padding(0, 1).
			Margin(0, 1, 0, 0).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorGray).
			Foreground(colorGray)

	lampOnStyle = lampStyle.
			Bold(true).
			Foreground(colorDark).
			Background(colorAmber).
			BorderForeground(colorAmber)

	guardBorder = colorRed

	statusStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	runningStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorGreen)

	simulatedStyle = lipgloss.NewStyle().
			Foreground(colorOrange)

	timestampStyle = lipgloss.NewStyle().
			Foreground(colorGray)

	stepStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorWhite)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorRed)

	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorAmber)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(colorCyan)

	footerDescStyle = lipgloss.NewStyle().
			Foreground(colorGray)
)
