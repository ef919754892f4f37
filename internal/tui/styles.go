package tui

import "github.com/charmbracelet/lipgloss"

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7DD3FC")).
			Background(lipgloss.Color("#0F172A")).
			Padding(0, 2)

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#38BDF8")).
			Background(lipgloss.Color("#0F172A"))

	dividerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#333333"))

	emptyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(1, 2)

	nameStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF"))

	selectedNameStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#7DD3FC")).
				Bold(true)

	agentStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A78BFA"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	hotkeysStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#555555")).
			Padding(0, 2)

	messageStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7DD3FC")).
			Padding(0, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Padding(0, 2)

	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))

	statusRunning = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80"))
	statusStopped = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171"))
	statusOther   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24"))

	// Help modal
	helpStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7DD3FC")).
			Padding(1, 2).
			Foreground(lipgloss.Color("#FFFFFF"))

	helpHeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#7DD3FC")).
			Bold(true)

	helpKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A78BFA"))

	helpDescStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))

	// Confirmation
	confirmStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Padding(0, 2)
)
