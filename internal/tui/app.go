// Package tui is the agentbox dashboard: every registered sandbox with its
// live state, plus stop, remove and shell actions.
package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sky1core/agentbox/internal/sandbox"
)

// Run starts the dashboard loop. It cycles between the Bubble Tea program
// and interactive shells until the user quits.
func Run(ctx context.Context, managers []*sandbox.Manager) error {
	message := ""
	for {
		m := newModel(ctx, managers, message)
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		result, err := p.Run()
		if err != nil {
			return fmt.Errorf("TUI error: %w", err)
		}

		final := result.(model)
		if final.quitting || final.shellInto == nil {
			return nil
		}

		r := final.shellInto
		fmt.Printf("Opening a shell in %s... (exit to return)\n", r.entry.Name)
		code, err := r.mgr.Shell(ctx, r.entry.Name, r.entry.Workspace, nil)
		switch {
		case err != nil:
			message = fmt.Sprintf("shell: %v", err)
		case code != 0:
			message = fmt.Sprintf("shell in %s exited with %d", r.entry.Name, code)
		default:
			message = ""
		}

		// Reset terminal after the shell so Bubble Tea starts clean
		fmt.Print("\033c") // full terminal reset (RIS)
	}
}
