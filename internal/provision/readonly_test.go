package provision

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sky1core/agentbox/internal/logger"
	"github.com/sky1core/agentbox/internal/runtime/runtimetest"
)

func TestGuardInstallOrder(t *testing.T) {
	d := &runtimetest.Driver{}
	if err := NewGuard(d, logger.Discard()).Install(context.Background(), "sb", "/work"); err != nil {
		t.Fatalf("Install: %v", err)
	}

	wantContains := []string{
		`core.hooksPath "$HOME/.git-hooks"`,
		"push.autoSetupRemote true",
		`"$HOME/.git-hooks/pre-push"`,
		`"$HOME/.local/bin/git"`,
		`"$HOME/.local/bin/gh"`,
		"gh auth setup-git",
	}
	if d.Count(runtimetest.OpExec) != len(wantContains) {
		t.Fatalf("ops = %v", d.Ops())
	}
	for i, want := range wantContains {
		if got := shScript(t, d, i); !strings.Contains(got, want) {
			t.Errorf("step %d = %s\nwant it to contain %s", i, got, want)
		}
	}
}

func TestGuardInstallKeepsGoingOnFailure(t *testing.T) {
	d := &runtimetest.Driver{Codes: map[string]int{runtimetest.OpExec: 1}}
	err := NewGuard(d, logger.Discard()).Install(context.Background(), "sb", "/work")
	if err == nil {
		t.Fatal("expected error")
	}
	if d.Count(runtimetest.OpExec) != 6 {
		t.Errorf("every step should be attempted, ops = %v", d.Ops())
	}
}

// installGuard writes the wrappers into a scratch home by running the
// generated scripts with the host sh, and returns an environment whose
// PATH puts the wrappers ahead of fake real binaries.
func installGuard(t *testing.T) (home string, env []string) {
	t.Helper()
	requireSh(t)
	root := t.TempDir()
	home = filepath.Join(root, "home")
	realDir := filepath.Join(root, "real")
	if err := os.MkdirAll(realDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, bin := range []string{"git", "gh"} {
		fake := "#!/bin/sh\necho real " + bin + " \"$@\"\n"
		if err := os.WriteFile(filepath.Join(realDir, bin), []byte(fake), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	env = []string{
		"HOME=" + home,
		"PATH=" + filepath.Join(home, ".local", "bin") + ":" + realDir + ":/usr/bin:/bin",
	}
	for _, f := range []struct{ src, dest string }{
		{"scripts/pre-push", prePushHook},
		{"scripts/git", gitWrapperPath},
		{"scripts/gh", ghWrapperPath},
	} {
		content, err := guardScripts.ReadFile(f.src)
		if err != nil {
			t.Fatal(err)
		}
		cmd := exec.Command("sh", "-c", writeExecutable(f.dest, string(content)))
		cmd.Env = env
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("writing %s: %v\n%s", f.dest, err, out)
		}
		written, err := os.ReadFile(filepath.Join(home, strings.TrimPrefix(f.dest, "~/")))
		if err != nil {
			t.Fatal(err)
		}
		if string(written) != string(content) {
			t.Errorf("%s written with different content", f.dest)
		}
	}
	return home, env
}

func runWrapper(t *testing.T, env []string, home, bin string, args ...string) (string, int) {
	t.Helper()
	cmd := exec.Command(filepath.Join(home, ".local", "bin", bin), args...)
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return string(out), exitErr.ExitCode()
	}
	if err != nil {
		t.Fatalf("running %s: %v", bin, err)
	}
	return string(out), 0
}

func TestGHWrapperWhitelist(t *testing.T) {
	home, env := installGuard(t)

	tests := []struct {
		args    []string
		allowed bool
	}{
		{[]string{"pr", "view", "12"}, true},
		{[]string{"pr", "create"}, true},
		{[]string{"pr", "merge", "12"}, false},
		{[]string{"repo", "delete"}, false},
		{[]string{"issue", "comment", "3"}, true},
		{[]string{"issue", "delete", "3"}, false},
		{[]string{"api", "issues"}, true},
		{[]string{"api", "-X", "GET", "issues"}, true},
		{[]string{"api", "-X", "POST", "issues"}, false},
		{[]string{"api", "-XPOST", "issues"}, false},
		{[]string{"api", "--method", "DELETE", "x"}, false},
		{[]string{"api", "--method=PATCH", "x"}, false},
		{[]string{"project", "list"}, true},
		{[]string{"project", "delete"}, false},
		{[]string{"auth", "status"}, true},
		{[]string{"search", "repos", "x"}, true},
		{[]string{"release", "create", "v1"}, false},
		{nil, true},
	}

	for _, tt := range tests {
		t.Run(strings.Join(append([]string{"gh"}, tt.args...), " "), func(t *testing.T) {
			out, code := runWrapper(t, env, home, "gh", tt.args...)
			delegated := strings.HasPrefix(out, "real gh")
			if tt.allowed && (code != 0 || !delegated) {
				t.Errorf("expected delegation, got code=%d out=%q", code, out)
			}
			if !tt.allowed && (code == 0 || delegated || !strings.Contains(out, "blocked")) {
				t.Errorf("expected block, got code=%d out=%q", code, out)
			}
		})
	}
}

func TestGitWrapperBlocksPush(t *testing.T) {
	home, env := installGuard(t)

	tests := []struct {
		args    []string
		allowed bool
	}{
		{[]string{"status"}, true},
		{[]string{"commit", "-m", "push"}, true},
		{[]string{"push", "origin", "main"}, false},
		{[]string{"-C", "/tmp", "push"}, false},
		{[]string{"-c", "user.name=x", "push"}, false},
		{[]string{"--git-dir", "push", "log"}, true},
		{[]string{"send-pack", "x"}, false},
		{[]string{"receive-pack", "x"}, false},
	}

	for _, tt := range tests {
		t.Run(strings.Join(append([]string{"git"}, tt.args...), " "), func(t *testing.T) {
			out, code := runWrapper(t, env, home, "git", tt.args...)
			delegated := strings.HasPrefix(out, "real git")
			if tt.allowed != (code == 0 && delegated) {
				t.Errorf("allowed=%v but code=%d out=%q", tt.allowed, code, out)
			}
		})
	}
}

func TestPrePushHookAlwaysFails(t *testing.T) {
	home, env := installGuard(t)
	cmd := exec.Command(filepath.Join(home, ".git-hooks", "pre-push"))
	cmd.Env = env
	out, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatal("pre-push hook should exit nonzero")
	}
	if !strings.Contains(string(out), "git push is blocked") {
		t.Errorf("output = %q", out)
	}
}
