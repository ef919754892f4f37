package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/sandbox"
	"golang.org/x/term"
)

// row is one sandbox on the dashboard: its registry entry, its live state
// and the manager for the runtime it lives on.
type row struct {
	entry *sandbox.Entry
	state runtime.State
	mgr   *sandbox.Manager
}

// model is the Bubble Tea model for the agentbox dashboard.
type model struct {
	ctx      context.Context
	managers []*sandbox.Manager

	rows    []row
	loaded  bool
	input   textinput.Model
	spinner spinner.Model
	cursor  int
	message string
	isError bool

	commanding bool // true when in command mode (/ pressed)
	quitting   bool
	shellInto  *row // sandbox to open a shell in after tea quits
	width      int
	height     int

	// busy maps a sandbox name to the operation running on it.
	busy map[string]string

	showHelp bool

	// Double-press confirmation: the key pressed once and its target.
	confirmKey  string
	confirmName string
}

func newModel(ctx context.Context, managers []*sandbox.Manager, message string) model {
	ti := textinput.New()
	ti.Placeholder = "shell, stop, rm [name] | quit"
	ti.CharLimit = 256
	ti.Width = 80
	ti.Blur()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	// Get initial terminal size so the first render isn't at width=0
	w, h, _ := term.GetSize(int(os.Stdout.Fd()))
	if w == 0 {
		w = 80
	}
	if h == 0 {
		h = 24
	}

	return model{
		ctx:      ctx,
		managers: managers,
		input:    ti,
		spinner:  sp,
		width:    w,
		height:   h,
		message:  message,
		busy:     make(map[string]string),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.refreshCmd(), tickCmd(), m.spinner.Tick)
}

func (m model) refreshCmd() tea.Cmd {
	ctx, managers := m.ctx, m.managers
	return func() tea.Msg {
		rows, err := loadRows(ctx, managers)
		return rowsLoadedMsg{rows: rows, err: err}
	}
}

// loadRows joins every manager's registry entries with the live state its
// runtime reports. A runtime that cannot be listed keeps its entries, shown
// as not found, and contributes to the returned error.
func loadRows(ctx context.Context, managers []*sandbox.Manager) ([]row, error) {
	var rows []row
	var errs []error
	for _, mgr := range managers {
		entries, err := mgr.List()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if len(entries) == 0 {
			continue
		}
		states, err := mgr.Statuses(ctx)
		if err != nil {
			errs = append(errs, err)
		}
		for _, e := range entries {
			rows = append(rows, row{entry: e, state: states[e.Name], mgr: mgr})
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].entry.CreatedAt.Before(rows[j].entry.CreatedAt)
	})
	return rows, errors.Join(errs...)
}

func (m model) selected() (row, bool) {
	if m.cursor < 0 || m.cursor >= len(m.rows) {
		return row{}, false
	}
	return m.rows[m.cursor], true
}

func (m model) find(name string) (row, bool) {
	for _, r := range m.rows {
		if r.entry.Name == name {
			return r, true
		}
	}
	return row{}, false
}

func (m *model) setMessage(format string, args ...any) {
	m.message = fmt.Sprintf(format, args...)
	m.isError = false
}

func (m *model) setError(format string, args ...any) {
	m.message = fmt.Sprintf(format, args...)
	m.isError = true
}
