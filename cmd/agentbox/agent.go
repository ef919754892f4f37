package main

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/sky1core/agentbox/internal/agent"
	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/sandbox"
)

func agentCmd(a *app, spec agent.Spec) *cobra.Command {
	return &cobra.Command{
		Use:   string(spec.Kind) + " [shell|stop|rm|ls|args...]",
		Short: spec.Description,
		// Everything after the agent name belongs to the agent CLI.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.dispatch(cmd.Context(), spec, args)
		},
	}
}

func (a *app) dispatch(ctx context.Context, spec agent.Spec, args []string) error {
	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	if command == "ls" {
		return a.list(ctx)
	}

	cfg, err := a.resolve(spec.Kind)
	if err != nil {
		return err
	}
	mgr, err := a.manager(cfg.Runtime)
	if err != nil {
		return err
	}
	name := cfg.Agent.SandboxName

	switch command {
	case "stop":
		if err := mgr.Stop(ctx, name); err != nil {
			return err
		}
		a.log.Info(fmt.Sprintf("%s stopped", name))
		return nil

	case "rm":
		if err := mgr.Remove(ctx, name); err != nil {
			return err
		}
		a.log.Info(fmt.Sprintf("%s removed", name))
		return nil

	case "shell":
		if err := mgr.EnsureRunning(ctx, cfg); err != nil {
			return err
		}
		a.log.Info(fmt.Sprintf("opening bash shell in %s", name))
		return exitWith(mgr.Shell(ctx, name, cfg.Workspace, cfg.Env))
	}

	if err := mgr.EnsureRunning(ctx, cfg); err != nil {
		return err
	}
	return exitWith(a.runAgent(ctx, mgr, cfg, args))
}

// runAgent launches the agent CLI. Run-mode agents without env go through
// the runtime's own launcher when it has one; everything else execs the
// binary with the configured default arguments.
func (a *app) runAgent(ctx context.Context, mgr *sandbox.Manager, cfg *config.Resolved, args []string) (int, error) {
	spec, name := cfg.Agent.Spec, cfg.Agent.SandboxName
	mode := "passthrough"
	if len(args) == 0 {
		mode = "interactive"
	}
	a.log.Info(fmt.Sprintf("%s %s", spec.Kind, mode))

	launcher, hasLauncher := mgr.Driver().(runtime.AgentRunner)
	if cfg.Agent.ExecMode == agent.ExecModeRun && len(cfg.Env) == 0 && hasLauncher {
		return launcher.RunAgent(ctx, name, spec.WithDefaultModel(args, cfg.Agent.Model))
	}

	argv := append(slices.Clone(cfg.Agent.DefaultArgs), args...)
	argv = spec.WithDefaultModel(argv, cfg.Agent.Model)
	opts := runtime.ExecOptions{
		Command: append([]string{cfg.Agent.Binary}, argv...),
		Env:     cfg.Env,
		WorkDir: cfg.Workspace,
	}
	if len(args) == 0 || a.isTTY() {
		return mgr.Driver().ExecInteractive(ctx, name, opts)
	}
	return mgr.Driver().ExecNonInteractive(ctx, name, opts)
}

// exitWith turns a child's exit code into the CLI's own exit status.
func exitWith(code int, err error) error {
	if err != nil {
		return err
	}
	if code != 0 {
		return exitCodeError{code: code}
	}
	return nil
}
