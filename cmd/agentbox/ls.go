package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/sky1core/agentbox/internal/sandbox"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFD700")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#555555"))
)

func lsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List sandboxes and their live state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.list(cmd.Context())
		},
	}
}

type listing struct {
	entry *sandbox.Entry
	state string
}

func (a *app) list(ctx context.Context) error {
	managers, err := a.managers()
	if err != nil {
		return err
	}

	var rows []listing
	for _, mgr := range managers {
		entries, err := mgr.List()
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		states, err := mgr.Statuses(ctx)
		if err != nil {
			a.log.Warn("could not query runtime", "runtime", mgr.Driver().Name(), "err", err)
		}
		for _, e := range entries {
			state := "unknown"
			if states != nil {
				state = states[e.Name].String()
			}
			rows = append(rows, listing{entry: e, state: state})
		}
	}

	if len(rows) == 0 {
		fmt.Fprintln(a.stdout, "No sandboxes yet. Run `agentbox <agent>` in a project to create one.")
		return nil
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].entry.CreatedAt.Before(rows[j].entry.CreatedAt)
	})
	fmt.Fprintln(a.stdout, renderListing(rows, time.Now()))
	return nil
}

func renderListing(rows []listing, now time.Time) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(tableBorderStyle).
		Headers("NAME", "AGENT", "RUNTIME", "STATE", "WORKSPACE", "LAST ENSURED").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		})
	for _, r := range rows {
		last := "-"
		if !r.entry.LastEnsuredAt.IsZero() {
			last = now.Sub(r.entry.LastEnsuredAt).Round(time.Second).String() + " ago"
		}
		t.Row(r.entry.Name, string(r.entry.Agent), r.entry.Runtime, r.state, r.entry.Workspace, last)
	}
	return t.Render()
}
