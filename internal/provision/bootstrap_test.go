package provision

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/logger"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/runtime/runtimetest"
)

type bootstrapFixture struct {
	host      config.Host
	workspace string
	outside   string
}

func newBootstrapFixture(t *testing.T) bootstrapFixture {
	t.Helper()
	root := t.TempDir()
	f := bootstrapFixture{
		host:      config.Host{Home: filepath.Join(root, "home"), Cwd: filepath.Join(root, "ws")},
		workspace: filepath.Join(root, "ws"),
		outside:   filepath.Join(root, "elsewhere"),
	}
	for _, p := range []string{
		filepath.Join(f.workspace, "setup.sh"),
		filepath.Join(f.workspace, "scripts", "start.sh"),
		filepath.Join(f.host.Home, "script.sh"),
		filepath.Join(f.outside, "script.sh"),
	} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("#!/bin/bash\necho hi\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

var stagedPattern = regexp.MustCompile(`^/tmp/agentbox-bootstrap/script\.sh\.[0-9a-f]{8}$`)

func TestResolveScript(t *testing.T) {
	f := newBootstrapFixture(t)

	tests := []struct {
		name     string
		path     string
		wantLoc  Location
		wantPath string
		staged   bool
	}{
		{"workspace relative", "./setup.sh", WorkspaceRelative, filepath.Join(f.workspace, "setup.sh"), false},
		{"workspace nested", "scripts/start.sh", WorkspaceRelative, filepath.Join(f.workspace, "scripts", "start.sh"), false},
		{"workspace absolute", filepath.Join(f.workspace, "setup.sh"), WorkspaceAbsolute, filepath.Join(f.workspace, "setup.sh"), false},
		{"host home", "~/script.sh", HostHome, "", true},
		{"host absolute", filepath.Join(f.outside, "script.sh"), HostAbsolute, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ResolveScript(f.host, f.workspace, tt.path)
			if err != nil {
				t.Fatalf("ResolveScript: %v", err)
			}
			if s.Location != tt.wantLoc {
				t.Errorf("Location = %v, want %v", s.Location, tt.wantLoc)
			}
			if s.Display != tt.path {
				t.Errorf("Display = %q, want %q", s.Display, tt.path)
			}
			if tt.staged {
				if !stagedPattern.MatchString(s.Path) {
					t.Errorf("Path = %q, want staged path with 8-hex hash", s.Path)
				}
			} else if s.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", s.Path, tt.wantPath)
			}
		})
	}
}

func TestResolveScriptNotFound(t *testing.T) {
	f := newBootstrapFixture(t)
	for _, p := range []string{"./missing.sh", "~/missing.sh", "/nonexistent/x.sh", "scripts"} {
		_, err := ResolveScript(f.host, f.workspace, p)
		if !errors.Is(err, ErrScriptNotFound) {
			t.Errorf("ResolveScript(%q) err = %v, want ErrScriptNotFound", p, err)
		}
		if err != nil && !strings.Contains(err.Error(), "bootstrap script not found: "+p) {
			t.Errorf("message = %q", err)
		}
	}
}

func TestStagedPathSeparatesSameNames(t *testing.T) {
	a := StagedPath("/home/a/setup.sh")
	b := StagedPath("/home/b/setup.sh")
	if a == b {
		t.Errorf("same-named scripts collide: %s", a)
	}
	if a != StagedPath("/home/a/setup.sh") {
		t.Error("StagedPath is not deterministic")
	}
	if !strings.HasPrefix(a, BootstrapStageDir+"/setup.sh.") {
		t.Errorf("StagedPath = %q", a)
	}
}

func TestBootstrapEmptyIsNoop(t *testing.T) {
	d := &runtimetest.Driver{}
	f := newBootstrapFixture(t)
	if err := NewBootstrapper(d, f.host, logger.Discard()).Run(context.Background(), OnCreate, "sb", f.workspace, nil, nil); err != nil {
		t.Fatal(err)
	}
	if len(d.Calls) != 0 {
		t.Errorf("calls = %v", d.Ops())
	}
}

func TestBootstrapWorkspaceScriptRunsInPlace(t *testing.T) {
	d := &runtimetest.Driver{}
	f := newBootstrapFixture(t)
	env := map[string]string{"FOO": "bar"}

	if err := NewBootstrapper(d, f.host, logger.Discard()).Run(context.Background(), OnStart, "sb", f.workspace, []string{"./setup.sh"}, env); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if d.Count(runtimetest.OpCopy) != 0 {
		t.Error("workspace scripts must not be copied")
	}
	if d.Count(runtimetest.OpExec) != 1 {
		t.Fatalf("ops = %v", d.Ops())
	}
	exec := d.Calls[0].Exec
	want := "bash -euo pipefail " + filepath.Join(f.workspace, "setup.sh")
	if strings.Join(exec.Command, " ") != want {
		t.Errorf("command = %v, want %s", exec.Command, want)
	}
	if exec.WorkDir != f.workspace || exec.Env["FOO"] != "bar" {
		t.Errorf("exec = %+v", exec)
	}
}

func TestBootstrapHomeScriptIsCopied(t *testing.T) {
	d := &runtimetest.Driver{}
	f := newBootstrapFixture(t)

	if err := NewBootstrapper(d, f.host, logger.Discard()).Run(context.Background(), OnCreate, "sb", f.workspace, []string{"~/script.sh"}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantOps := []string{runtimetest.OpExec, runtimetest.OpCopy, runtimetest.OpExec}
	if strings.Join(d.Ops(), ",") != strings.Join(wantOps, ",") {
		t.Fatalf("ops = %v, want %v", d.Ops(), wantOps)
	}
	cp := d.Calls[1]
	if cp.Src != filepath.Join(f.host.Home, "script.sh") || !stagedPattern.MatchString(cp.Dst) {
		t.Errorf("copy = %+v", cp)
	}
	if run := d.Calls[2].Exec.Command; run[len(run)-1] != cp.Dst {
		t.Errorf("ran %v, want staged copy %s", run, cp.Dst)
	}
}

func TestBootstrapFailureAbortsPhase(t *testing.T) {
	f := newBootstrapFixture(t)
	d := &runtimetest.Driver{
		ExecCode: func(o runtime.ExecOptions) int {
			if strings.HasSuffix(o.Command[len(o.Command)-1], "setup.sh") {
				return 3
			}
			return 0
		},
	}

	err := NewBootstrapper(d, f.host, logger.Discard()).Run(context.Background(), OnCreate, "sb", f.workspace, []string{"./setup.sh", "scripts/start.sh"}, nil)

	var bErr *BootstrapError
	if !errors.As(err, &bErr) {
		t.Fatalf("err = %v, want *BootstrapError", err)
	}
	if bErr.ExitCode != 3 || bErr.Phase != OnCreate {
		t.Errorf("BootstrapError = %+v", bErr)
	}
	if err.Error() != "bootstrap onCreate failed (exit=3): ./setup.sh" {
		t.Errorf("message = %q", err)
	}
	if d.Count(runtimetest.OpExec) != 1 {
		t.Errorf("later scripts must not run, ops = %v", d.Ops())
	}
}

func TestBootstrapMissingScriptStopsBeforeRunning(t *testing.T) {
	f := newBootstrapFixture(t)
	d := &runtimetest.Driver{}

	err := NewBootstrapper(d, f.host, logger.Discard()).Run(context.Background(), OnStart, "sb", f.workspace, []string{"./setup.sh", "./gone.sh", "scripts/start.sh"}, nil)
	if !errors.Is(err, ErrScriptNotFound) {
		t.Fatalf("err = %v", err)
	}
	if d.Count(runtimetest.OpExec) != 1 {
		t.Errorf("ops = %v, want only the first script to run", d.Ops())
	}
}
