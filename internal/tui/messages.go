package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// rowsLoadedMsg carries a fresh snapshot of the registry and live states.
type rowsLoadedMsg struct {
	rows []row
	err  error
}

// opDoneMsg is sent when a stop or remove finishes.
type opDoneMsg struct {
	op   string
	name string
	err  error
}

// confirmExpiredMsg cancels a pending double-press confirmation.
type confirmExpiredMsg struct{ key, name string }

// statusTickMsg triggers a status refresh poll.
type statusTickMsg time.Time

const refreshInterval = 2 * time.Second

// tickCmd returns a command that sends a tick every refreshInterval.
func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return statusTickMsg(t)
	})
}
