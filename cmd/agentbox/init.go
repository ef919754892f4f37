package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sky1core/agentbox/internal/config"
)

const setupScript = "setup.sh"

type initOptions struct {
	Runtime     string
	RemoteWrite bool
	Force       bool
}

func (o *initOptions) AddFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&o.Runtime, "runtime", "", "runtime for this project (lima or docker); empty uses the global default")
	flagSet.BoolVar(&o.RemoteWrite, "remote-write", false, "allow git push and gh writes from inside the sandbox")
	flagSet.BoolVarP(&o.Force, "force", "f", false, "overwrite an existing agentbox.yml")
}

func initCmd(a *app) *cobra.Command {
	var opts initOptions
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write agentbox.yml and a bootstrap script for the current project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.initProject(a.host.Cwd, opts)
		},
	}
	opts.AddFlags(cmd.Flags())
	return cmd
}

func (a *app) initProject(projectDir string, opts initOptions) error {
	if opts.Runtime != "" && opts.Runtime != config.RuntimeLima && opts.Runtime != config.RuntimeDocker {
		return fmt.Errorf("unknown runtime %q (want %s or %s)", opts.Runtime, config.RuntimeLima, config.RuntimeDocker)
	}
	if config.Exists(projectDir) && !opts.Force {
		fmt.Fprintln(a.stdout, "agentbox already initialized in this project (use --force to overwrite).")
		return nil
	}

	detection := config.Detect(projectDir)
	scriptPath := "./" + filepath.ToSlash(filepath.Join(config.Dir, setupScript))

	cfg := &config.LocalConfig{
		Runtime: opts.Runtime,
		Bootstrap: config.BootstrapConfig{
			OnCreateScript: config.ScriptList{scriptPath},
		},
	}
	if opts.RemoteWrite {
		allow := true
		cfg.Sync.RemoteWrite = &allow
	}

	if err := config.Save(projectDir, cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	if err := writeSetupScript(projectDir, detection); err != nil {
		return fmt.Errorf("writing setup script: %w", err)
	}

	fmt.Fprintf(a.stdout, "Initialized agentbox for %s (%s project)\n", filepath.Base(projectDir), detection.Language)
	fmt.Fprintf(a.stdout, "  Config: %s\n", config.LocalConfigFile)
	fmt.Fprintf(a.stdout, "  Bootstrap (onCreate): %s\n", scriptPath)
	fmt.Fprintln(a.stdout, "\nRun `agentbox <agent>` to start a sandbox.")
	return nil
}

// writeSetupScript writes the onCreate bootstrap script. An existing
// script is left alone since users are expected to edit it.
func writeSetupScript(projectDir string, d config.Detection) error {
	path := filepath.Join(projectDir, config.Dir, setupScript)
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	fmt.Fprintf(&b, "# Runs once inside a new sandbox (language: %s), from the workspace root.\n", d.Language)
	b.WriteString("set -euo pipefail\n\n")
	if len(d.Packages) > 0 {
		b.WriteString("sudo apt-get update\n")
		fmt.Fprintf(&b, "sudo apt-get install -y %s\n", strings.Join(d.Packages, " "))
	}
	for _, step := range d.Setup {
		b.WriteString(step + "\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0o755)
}
