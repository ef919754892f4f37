package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sky1core/agentbox/internal/agent"
	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/shell"
)

const ghTokenStageName = "gh-token"

// CredentialInjector copies named host secret files into a sandbox. The
// host home directory is never shared; only catalogued files cross over.
type CredentialInjector struct {
	driver runtime.Driver
	host   config.Host
	// hostRun runs commands on the host (gh auth token).
	hostRun process.Runner
	log     *slog.Logger
	newID   func() string
}

func NewCredentialInjector(d runtime.Driver, h config.Host, hostRun process.Runner, log *slog.Logger) *CredentialInjector {
	return &CredentialInjector{
		driver:  d,
		host:    h,
		hostRun: hostRun,
		log:     log,
		newID:   uuid.NewString,
	}
}

// Catalogue lists the credential files for cfg that exist on the host.
// Common files and sync.files are always considered; agent files and
// user-listed credential files only when credentials are enabled.
func (c *CredentialInjector) Catalogue(cfg *config.Resolved) []agent.CredentialFile {
	candidates := agent.CommonCredentials(c.host.Home)
	if cfg.Agent.Credentials.Enabled {
		if cfg.Agent.Spec.Credentials != nil {
			candidates = append(candidates, cfg.Agent.Spec.Credentials(c.host.Home, c.host.GOOS)...)
		}
		candidates = append(candidates, c.homeFiles("credentials.files", cfg.Agent.Credentials.Files)...)
	}
	candidates = append(candidates, c.homeFiles("sync.files", cfg.SyncFiles)...)

	var existing []agent.CredentialFile
	seen := make(map[string]bool)
	for _, f := range candidates {
		if seen[f.Dest] {
			continue
		}
		if info, err := os.Stat(f.HostPath); err != nil || info.IsDir() {
			continue
		}
		seen[f.Dest] = true
		existing = append(existing, f)
	}
	return existing
}

// Inject stages every catalogued file in a fresh sandbox temp directory,
// moves them into place in one shell call and removes the staging
// directory. Failures are collected and returned; the caller treats them
// as warnings.
func (c *CredentialInjector) Inject(ctx context.Context, name string, cfg *config.Resolved) error {
	files := c.Catalogue(cfg)
	tokenFile, cleanup := c.hostGHToken(ctx)
	defer cleanup()

	if len(files) == 0 && tokenFile == "" {
		return nil
	}
	c.log.Info("injecting credentials")

	ws := cfg.Workspace
	staging := "/tmp/agentbox-creds-" + c.newID()
	if err := mustSh(ctx, c.driver, name, ws, "creating credential staging dir", "mkdir -p "+shell.Quote(staging)); err != nil {
		return err
	}

	var errs []error
	var moves []string
	for _, f := range files {
		staged := staging + "/" + stageName(f.Dest)
		if code, err := c.driver.CopyFileIn(ctx, name, f.HostPath, staged); err != nil || code != 0 {
			errs = append(errs, fmt.Errorf("copying %s: %w", f.HostPath, copyErr(code, err)))
			continue
		}
		dest := `"$HOME/` + shell.EscapeDouble(f.Dest) + `"`
		moves = append(moves, shell.AndThen(
			`mkdir -p "$(dirname `+dest+`)"`,
			"mv "+shell.Quote(staged)+" "+dest,
			"chmod 600 "+dest,
		))
	}
	if tokenFile != "" {
		staged := staging + "/" + ghTokenStageName
		if code, err := c.driver.CopyFileIn(ctx, name, tokenFile, staged); err != nil || code != 0 {
			errs = append(errs, fmt.Errorf("copying gh token: %w", copyErr(code, err)))
		} else {
			moves = append(moves, "{ command -v gh >/dev/null 2>&1 && gh auth login --with-token < "+shell.Quote(staged)+" >/dev/null 2>&1 || true; }")
		}
	}
	if err := mustSh(ctx, c.driver, name, ws, "moving credentials into place", moveScript(moves, staging)); err != nil {
		errs = append(errs, err)
	}

	if err := mustSh(ctx, c.driver, name, ws, "including host gitconfig",
		`[ -f "$HOME/.host-gitconfig" ] && git config --global include.path "$HOME/.host-gitconfig" || true`); err != nil {
		errs = append(errs, err)
	}
	if err := mustSh(ctx, c.driver, name, ws, "configuring gh credential helper", ghSetupGit); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// moveScript runs the moves and then removes staging whatever they
// returned, so no staged secret outlives the call. The moves' status is
// the script's status.
func moveScript(moves []string, staging string) string {
	cleanup := "rm -rf " + shell.Quote(staging)
	if len(moves) == 0 {
		return cleanup
	}
	return "{ " + shell.AndThen(moves...) + "; }; rc=$?; " + cleanup + "; exit $rc"
}

const ghSetupGit = "command -v gh >/dev/null 2>&1 && gh auth setup-git 2>/dev/null || true"

// hostGHToken writes the host's gh token to a private temp file. It
// returns "" when gh is missing or not logged in.
func (c *CredentialInjector) hostGHToken(ctx context.Context) (string, func()) {
	noop := func() {}
	if c.hostRun == nil {
		return "", noop
	}
	res, err := c.hostRun.Capture(ctx, "gh", "auth", "token")
	token := strings.TrimSpace(res.Stdout)
	if err != nil || res.Status != 0 || token == "" {
		c.log.Info("gh token not available on host, skipping")
		return "", noop
	}

	f, err := os.CreateTemp("", "agentbox-gh-token-*")
	if err != nil {
		c.log.Warn("could not stage gh token", "err", err)
		return "", noop
	}
	path := f.Name()
	cleanup := func() { os.Remove(path) }
	if err := f.Chmod(0o600); err == nil {
		_, err = f.WriteString(token + "\n")
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		cleanup()
		c.log.Warn("could not stage gh token", "err", err)
		return "", noop
	}
	return path, cleanup
}

// homeFiles maps ~/ paths to the same place under the sandbox home.
func (c *CredentialInjector) homeFiles(key string, paths []string) []agent.CredentialFile {
	var out []agent.CredentialFile
	for _, f := range paths {
		if !strings.HasPrefix(f, "~/") {
			c.log.Warn(key+" entries must start with ~/, skipping", "path", f)
			continue
		}
		out = append(out, agent.CredentialFile{
			HostPath: c.host.ExpandHome(f),
			Dest:     filepath.ToSlash(filepath.Clean(f[2:])),
		})
	}
	return out
}

// stageName flattens a home-relative destination into one file name.
func stageName(dest string) string {
	return strings.ReplaceAll(dest, "/", "__")
}

func copyErr(code int, err error) error {
	if err != nil {
		return err
	}
	return fmt.Errorf("exit %d", code)
}
