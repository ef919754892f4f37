package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/sky1core/agentbox/internal/runtime"
)

func (m model) View() string {
	if m.quitting {
		return ""
	}

	title := "agentbox"
	count := countStyle.Render(fmt.Sprintf("%d sandboxes", len(m.rows)))
	gap := m.width - lipgloss.Width(title) - lipgloss.Width(count) - 4
	if gap < 1 {
		gap = 1
	}
	header := headerStyle.Width(m.width).Render(title + strings.Repeat(" ", gap) + count)

	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")

	switch {
	case !m.loaded:
		b.WriteString(emptyStyle.Render(m.spinner.View() + " Loading sandboxes..."))
		b.WriteString("\n")
	case len(m.rows) == 0:
		b.WriteString(emptyStyle.Render("No sandboxes yet. Run `agentbox <agent>` in a project to create one."))
		b.WriteString("\n")
	default:
		for i, r := range m.rows {
			b.WriteString(m.renderRow(i, r))
			b.WriteString("\n")
		}
	}

	b.WriteString(dividerStyle.Render(strings.Repeat("─", m.width)))
	b.WriteString("\n")

	switch {
	case m.commanding:
		b.WriteString(hotkeysStyle.Render("[enter] execute  [esc] cancel"))
	case m.confirmKey == "x":
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Stop %s? Press x again to confirm, any other key to cancel", m.confirmName)))
	case m.confirmKey == "d":
		b.WriteString(confirmStyle.Render(fmt.Sprintf("Remove %s? Press d again to confirm, any other key to cancel", m.confirmName)))
	case len(m.rows) == 0:
		b.WriteString(hotkeysStyle.Render("[r]efresh  [?] help  [q] quit"))
	default:
		b.WriteString(hotkeysStyle.Render("[↑↓] select  [enter] shell  [x] stop  [d] remove  [r]efresh  [?] help"))
	}
	b.WriteString("\n")

	m.renderStatusAndInput(&b)

	if m.showHelp {
		return m.renderHelpOverlay(b.String())
	}
	return b.String()
}

func (m model) renderRow(index int, r row) string {
	cursor := "  "
	nStyle := nameStyle
	if index == m.cursor {
		cursor = "▸ "
		nStyle = selectedNameStyle
	}

	icon := m.stateIcon(r)
	parts := []string{
		fmt.Sprintf("  %s%s %s", cursor, icon, nStyle.Render(r.entry.Name)),
		agentStyle.Render(string(r.entry.Agent)),
		detailStyle.Render(r.entry.Runtime),
		detailStyle.Render(stateLabel(m.busy[r.entry.Name], r.state)),
		detailStyle.Render(r.entry.Workspace),
	}
	if !r.entry.LastEnsuredAt.IsZero() {
		parts = append(parts, detailStyle.Render("ensured "+ago(time.Since(r.entry.LastEnsuredAt))))
	}
	return strings.Join(parts, "  ")
}

func (m model) stateIcon(r row) string {
	if _, busy := m.busy[r.entry.Name]; busy {
		return m.spinner.View()
	}
	switch r.state {
	case runtime.StateRunning:
		return statusRunning.Render("●")
	case runtime.StateStopped:
		return statusStopped.Render("○")
	default:
		return statusOther.Render("◌")
	}
}

func stateLabel(op string, s runtime.State) string {
	switch op {
	case opStop:
		return "stopping"
	case opRemove:
		return "removing"
	}
	return s.String()
}

// ago renders a coarse, human-readable age.
func ago(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func (m model) renderStatusAndInput(b *strings.Builder) {
	if m.message != "" {
		if m.isError {
			b.WriteString(errorStyle.Render(m.message))
		} else {
			b.WriteString(messageStyle.Render(m.message))
		}
		b.WriteString("\n")
	}
	if m.commanding {
		b.WriteString("  ")
		b.WriteString(m.input.View())
		b.WriteString("\n")
	}
}

func (m model) renderHelpOverlay(base string) string {
	help := strings.Join([]string{
		helpHeaderStyle.Render("Navigation"),
		helpKeyStyle.Render("  ↑/k  ↓/j") + helpDescStyle.Render("   Select sandbox"),
		helpKeyStyle.Render("  Enter") + helpDescStyle.Render("       Open a shell"),
		"",
		helpHeaderStyle.Render("Actions"),
		helpKeyStyle.Render("  x x") + helpDescStyle.Render("         Stop selected sandbox"),
		helpKeyStyle.Render("  d d") + helpDescStyle.Render("         Remove selected sandbox"),
		helpKeyStyle.Render("  r") + helpDescStyle.Render("           Refresh now"),
		"",
		helpHeaderStyle.Render("Commands"),
		helpKeyStyle.Render("  /") + helpDescStyle.Render("           Open command bar"),
		helpDescStyle.Render("  /shell [name]"),
		helpDescStyle.Render("  /stop [name]"),
		helpDescStyle.Render("  /rm [name]"),
		helpDescStyle.Render("  /quit"),
		"",
		helpKeyStyle.Render("  q") + helpDescStyle.Render("  quit") + "     " + helpKeyStyle.Render("?") + helpDescStyle.Render("  close this help"),
	}, "\n")

	modal := helpStyle.Render(help)

	// Center the modal over the base view
	modalWidth := lipgloss.Width(modal)
	modalHeight := lipgloss.Height(modal)
	xOffset := max(0, (m.width-modalWidth)/2)
	yOffset := max(0, (m.height-modalHeight)/2)

	baseLines := strings.Split(base, "\n")
	for len(baseLines) < yOffset+modalHeight {
		baseLines = append(baseLines, "")
	}
	padding := strings.Repeat(" ", xOffset)
	for i, mLine := range strings.Split(modal, "\n") {
		baseLines[yOffset+i] = padding + mLine + strings.Repeat(" ", max(0, m.width-xOffset-lipgloss.Width(mLine)))
	}
	return strings.Join(baseLines, "\n")
}
