package provision

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/runtime"
)

// Phase is a bootstrap lifecycle point.
type Phase string

const (
	OnCreate Phase = "onCreate"
	OnStart  Phase = "onStart"
)

// BootstrapStageDir holds host scripts copied into the sandbox.
const BootstrapStageDir = "/tmp/agentbox-bootstrap"

// ErrScriptNotFound is wrapped by errors for missing bootstrap scripts.
var ErrScriptNotFound = errors.New("bootstrap script not found")

// Location says where a bootstrap script lives and how it reaches the
// sandbox.
type Location int

const (
	// WorkspaceRelative scripts are resolved against the mounted
	// workspace and run in place.
	WorkspaceRelative Location = iota
	// WorkspaceAbsolute scripts are absolute paths inside the workspace.
	WorkspaceAbsolute
	// HostHome scripts (~/...) are copied in.
	HostHome
	// HostAbsolute scripts outside the workspace are copied in.
	HostAbsolute
)

// Copied reports whether scripts at l must be copied into the sandbox.
func (l Location) Copied() bool { return l == HostHome || l == HostAbsolute }

// Script is a resolved bootstrap script.
type Script struct {
	// Path is where the script is run inside the sandbox.
	Path string
	// HostPath is the file on the host.
	HostPath string
	// Display is the path as written in config.
	Display  string
	Location Location
}

// BootstrapError reports a script that exited nonzero.
type BootstrapError struct {
	Phase    Phase
	Script   string
	ExitCode int
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap %s failed (exit=%d): %s", e.Phase, e.ExitCode, e.Script)
}

// ResolveScript classifies p and checks that it exists on the host. The
// workspace is mounted at the same path inside the sandbox, so workspace
// scripts are checked where they will run.
func ResolveScript(h config.Host, workspace, p string) (Script, error) {
	s := Script{Display: p}
	switch {
	case strings.HasPrefix(p, "~/"):
		s.Location = HostHome
		s.HostPath = h.ExpandHome(p)
	case filepath.IsAbs(p):
		s.HostPath = filepath.Clean(p)
		if within(workspace, s.HostPath) {
			s.Location = WorkspaceAbsolute
		} else {
			s.Location = HostAbsolute
		}
	default:
		s.Location = WorkspaceRelative
		s.HostPath = filepath.Join(workspace, p)
	}

	if info, err := os.Stat(s.HostPath); err != nil || info.IsDir() {
		return Script{}, fmt.Errorf("%w: %s (resolved: %s)", ErrScriptNotFound, p, s.HostPath)
	}

	if s.Location.Copied() {
		s.Path = StagedPath(s.HostPath)
	} else {
		s.Path = s.HostPath
	}
	return s, nil
}

// StagedPath names the in-sandbox copy of a host script. The hash of the
// host path keeps same-named scripts from different directories apart.
func StagedPath(hostPath string) string {
	sum := sha1.Sum([]byte(hostPath))
	return BootstrapStageDir + "/" + filepath.Base(hostPath) + "." + hex.EncodeToString(sum[:])[:8]
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Bootstrapper runs user bootstrap scripts inside a sandbox.
type Bootstrapper struct {
	driver runtime.Driver
	host   config.Host
	log    *slog.Logger
}

func NewBootstrapper(d runtime.Driver, h config.Host, log *slog.Logger) *Bootstrapper {
	return &Bootstrapper{driver: d, host: h, log: log}
}

// Run executes scripts in order with `bash -euo pipefail`, so the
// execute bit is not required. The first failure aborts the phase.
func (b *Bootstrapper) Run(ctx context.Context, phase Phase, name, workspace string, scripts []string, env map[string]string) error {
	for _, p := range scripts {
		s, err := ResolveScript(b.host, workspace, p)
		if err != nil {
			return err
		}
		if s.Location.Copied() {
			if err := b.stage(ctx, name, s); err != nil {
				return err
			}
		}

		b.log.Info(fmt.Sprintf("bootstrap %s: %s", phase, s.Display))
		code, err := b.driver.ExecNonInteractive(ctx, name, runtime.ExecOptions{
			Command: []string{"bash", "-euo", "pipefail", s.Path},
			Env:     env,
			WorkDir: workspace,
		})
		if err != nil {
			return fmt.Errorf("bootstrap %s: running %s: %w", phase, s.Display, err)
		}
		if code != 0 {
			return &BootstrapError{Phase: phase, Script: s.Display, ExitCode: code}
		}
	}
	return nil
}

func (b *Bootstrapper) stage(ctx context.Context, name string, s Script) error {
	if err := mustSh(ctx, b.driver, name, "/tmp", "creating bootstrap staging dir", "mkdir -p "+BootstrapStageDir); err != nil {
		return err
	}
	code, err := b.driver.CopyFileIn(ctx, name, s.HostPath, s.Path)
	if err != nil || code != 0 {
		return fmt.Errorf("copying bootstrap script %s: %w", s.Display, copyErr(code, err))
	}
	return nil
}
