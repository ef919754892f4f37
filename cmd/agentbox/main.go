package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sky1core/agentbox/internal/agent"
	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/logger"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/sandbox"
)

// app carries everything the commands share. It is built once in main.
type app struct {
	host   config.Host
	log    *slog.Logger
	run    process.Runner
	stdout io.Writer
	isTTY  func() bool
}

// exitCodeError makes the process exit with an agent's own exit code
// without printing anything further.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

func main() {
	host, err := config.CurrentHost()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", logger.Prefix, err)
		os.Exit(1)
	}
	a := &app{
		host:   host,
		log:    logger.FromEnv(os.Stderr, host.Getenv),
		run:    process.New(),
		stdout: os.Stdout,
		isTTY: func() bool {
			return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
		},
	}

	err = newRootCmd(a).ExecuteContext(context.Background())
	var exit exitCodeError
	switch {
	case errors.As(err, &exit):
		os.Exit(exit.code)
	case err != nil:
		fmt.Fprintf(os.Stderr, "%s %v\n", logger.Prefix, err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "agentbox",
		Short: "agentbox: run coding agents inside disposable sandboxes",
		Long: `agentbox runs a coding agent CLI inside a Lima VM or a docker sandbox
that mounts only the current workspace.

  agentbox <agent>               interactive agent session
  agentbox <agent> <args...>     passthrough to the agent CLI
  agentbox <agent> shell         bash inside the sandbox
  agentbox <agent> stop|rm       stop or remove the sandbox

Config: agentbox.yml (searched upward from the working directory) merged
over ~/.config/agentbox/config.yml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(lsCmd(a), dashCmd(a), initCmd(a))
	for _, spec := range agent.All() {
		root.AddCommand(agentCmd(a, spec))
	}
	return root
}

// managers returns one sandbox manager per supported runtime.
func (a *app) managers() ([]*sandbox.Manager, error) {
	var out []*sandbox.Manager
	for _, name := range []string{config.RuntimeLima, config.RuntimeDocker} {
		mgr, err := a.manager(name)
		if err != nil {
			return nil, err
		}
		out = append(out, mgr)
	}
	return out, nil
}

func (a *app) manager(rt string) (*sandbox.Manager, error) {
	d, err := runtime.New(rt, a.run, a.log, a.host.Home)
	if err != nil {
		return nil, err
	}
	return sandbox.NewManager(d, a.host, a.run, a.log), nil
}

func (a *app) resolve(kind agent.Kind) (*config.Resolved, error) {
	local, err := config.LoadLocal(a.host.Cwd)
	if err != nil {
		return nil, err
	}
	global, err := config.LoadGlobal(a.host)
	if err != nil {
		return nil, err
	}
	return config.Resolve(string(kind), local, global, a.host)
}
