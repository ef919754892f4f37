package provision

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/shell"
)

//go:embed scripts/pre-push scripts/git scripts/gh
var guardScripts embed.FS

// Paths inside the sandbox, relative to the user's home.
const (
	HooksDir       = "~/.git-hooks"
	WrapperDir     = "~/.local/bin"
	prePushHook    = HooksDir + "/pre-push"
	gitWrapperPath = WrapperDir + "/git"
	ghWrapperPath  = WrapperDir + "/gh"
)

// Guard blocks writes to git remotes from inside a sandbox: a pre-push
// hook, plus git and gh wrappers ahead of the real binaries in PATH.
type Guard struct {
	driver runtime.Driver
	log    *slog.Logger
}

func NewGuard(d runtime.Driver, log *slog.Logger) *Guard {
	return &Guard{driver: d, log: log}
}

// Install must run after credentials and bootstrap, which may reset
// core.hooksPath.
func (g *Guard) Install(ctx context.Context, name, workspace string) error {
	g.log.Info("installing readonly-remote guard")

	var errs []error
	step := func(what, script string) {
		if err := mustSh(ctx, g.driver, name, workspace, what, script); err != nil {
			errs = append(errs, err)
		}
	}

	step("setting hooks path", `git config --global core.hooksPath "`+shell.HomePath(HooksDir)+`"`)
	step("enabling push.autoSetupRemote", "git config --global push.autoSetupRemote true")

	for _, f := range []struct{ src, dest string }{
		{"scripts/pre-push", prePushHook},
		{"scripts/git", gitWrapperPath},
		{"scripts/gh", ghWrapperPath},
	} {
		content, err := guardScripts.ReadFile(f.src)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", f.src, err))
			continue
		}
		step("writing "+f.dest, writeExecutable(f.dest, string(content)))
	}

	step("configuring gh credential helper", ghSetupGit)
	return errors.Join(errs...)
}

// writeExecutable returns a script that writes content to dest verbatim.
// content travels as a single-quoted literal so nothing in it expands.
func writeExecutable(dest, content string) string {
	path := `"` + shell.HomePath(dest) + `"`
	return shell.AndThen(
		`mkdir -p "$(dirname `+path+`)"`,
		"printf '%s' "+shell.Quote(content)+" > "+path,
		"chmod +x "+path,
	)
}
