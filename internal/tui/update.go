package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sky1core/agentbox/internal/runtime"
)

const confirmWindow = 2 * time.Second

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.input.Width = msg.Width - 6 // account for "  > /" prefix
		return m, nil

	case statusTickMsg:
		return m, tea.Batch(m.refreshCmd(), tickCmd())

	case rowsLoadedMsg:
		m.rows = msg.rows
		m.loaded = true
		if m.cursor >= len(m.rows) {
			m.cursor = max(0, len(m.rows)-1)
		}
		if msg.err != nil && len(m.busy) == 0 {
			m.setError("refresh: %v", msg.err)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case opDoneMsg:
		delete(m.busy, msg.name)
		if msg.err != nil {
			m.setError("%v", msg.err)
		} else if msg.op == opRemove {
			m.setMessage("Removed %s", msg.name)
		} else {
			m.setMessage("Stopped %s", msg.name)
		}
		return m, m.refreshCmd()

	case confirmExpiredMsg:
		if m.confirmKey == msg.key && m.confirmName == msg.name {
			m.confirmKey, m.confirmName = "", ""
		}
		return m, nil

	case tea.KeyMsg:
		if m.commanding {
			return m.handleCommandMode(msg)
		}
		return m.handleNormalMode(msg)
	}

	// Forward to input if in command mode
	if m.commanding {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleNormalMode handles keys when navigating the sandbox list.
func (m model) handleNormalMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if m.showHelp {
		switch key {
		case "?", "esc":
			m.showHelp = false
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}
		return m, nil
	}

	// A pending confirmation is completed by the same key and cancelled
	// by anything else.
	if m.confirmKey != "" {
		pending, name := m.confirmKey, m.confirmName
		m.confirmKey, m.confirmName = "", ""
		if key == pending {
			if pending == "x" {
				return m.startOp(opStop, name)
			}
			return m.startOp(opRemove, name)
		}
		return m, nil
	}

	switch key {
	case "ctrl+c", "q":
		m.quitting = true
		return m, tea.Quit

	case "/":
		m.commanding = true
		m.input.Focus()
		m.input.SetValue("")
		return m, textinput.Blink

	case "x", "d":
		if r, ok := m.selected(); ok {
			m.confirmKey = key
			m.confirmName = r.entry.Name
			return m, tea.Tick(confirmWindow, func(time.Time) tea.Msg {
				return confirmExpiredMsg{key: key, name: r.entry.Name}
			})
		}
		return m, nil

	case "r":
		return m, m.refreshCmd()

	case "?":
		m.showHelp = !m.showHelp
		return m, nil

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		} else if len(m.rows) > 0 {
			m.cursor = len(m.rows) - 1
		}
		return m, nil

	case "down", "j":
		if m.cursor < len(m.rows)-1 {
			m.cursor++
		}
		return m, nil

	case "enter":
		if r, ok := m.selected(); ok {
			return m.openShell(r.entry.Name)
		}
		return m, nil
	}

	return m, nil
}

// handleCommandMode handles keys when the command input is active.
func (m model) handleCommandMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "esc":
		m.commanding = false
		m.input.Blur()
		m.input.SetValue("")
		return m, nil

	case "enter":
		m.commanding = false
		m.input.Blur()
		return m.processInput()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) processInput() (tea.Model, tea.Cmd) {
	input := m.input.Value()
	m.input.SetValue("")

	// Allow commands with or without the / prefix
	cmd := ParseCommand(input)
	if cmd == nil {
		cmd = ParseCommand("/" + input)
	}
	if cmd == nil {
		return m, nil
	}

	selected := ""
	if r, ok := m.selected(); ok {
		selected = r.entry.Name
	}

	switch cmd.Name {
	case "/shell":
		return m.openShell(cmd.Target(selected))
	case "/stop":
		return m.startOp(opStop, cmd.Target(selected))
	case "/rm":
		return m.startOp(opRemove, cmd.Target(selected))
	case "/quit":
		m.quitting = true
		return m, tea.Quit
	default:
		m.setError("Unknown command: %s", cmd.Name)
		return m, nil
	}
}

func (m model) openShell(name string) (tea.Model, tea.Cmd) {
	r, ok := m.find(name)
	if !ok {
		m.setError("No sandbox named %q", name)
		return m, nil
	}
	if r.state != runtime.StateRunning {
		m.setError("%s is %s; run `agentbox %s` to start it", name, r.state, r.entry.Agent)
		return m, nil
	}
	m.shellInto = &r
	return m, tea.Quit
}

const (
	opStop   = "stop"
	opRemove = "rm"
)

// startOp runs a stop or remove in the background. The spinner shows next
// to the sandbox until the matching opDoneMsg arrives.
func (m model) startOp(op, name string) (tea.Model, tea.Cmd) {
	r, ok := m.find(name)
	if !ok {
		m.setError("No sandbox named %q", name)
		return m, nil
	}
	if _, busy := m.busy[name]; busy {
		m.setError("%s is busy", name)
		return m, nil
	}

	m.busy[name] = op
	ctx := m.ctx
	if op == opRemove {
		m.setMessage("Removing %s...", name)
		return m, func() tea.Msg {
			return opDoneMsg{op: op, name: name, err: r.mgr.Remove(ctx, name)}
		}
	}
	m.setMessage("Stopping %s...", name)
	return m, func() tea.Msg {
		return opDoneMsg{op: op, name: name, err: r.mgr.Stop(ctx, name)}
	}
}
