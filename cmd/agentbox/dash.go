package main

import (
	"github.com/spf13/cobra"

	"github.com/sky1core/agentbox/internal/tui"
)

func dashCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dash",
		Short: "Open the sandbox dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			managers, err := a.managers()
			if err != nil {
				return err
			}
			return tui.Run(cmd.Context(), managers)
		},
	}
}
