package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/shell"
)

// EnvFile is sourced by interactive sessions for the injected environment.
const EnvFile = "/etc/sandbox-persistent.sh"

// Lima drives limactl-managed VMs.
type Lima struct {
	run   process.Runner
	log   *slog.Logger
	home  string
	sleep func(time.Duration)
	// templateDir receives rendered templates; defaults to $TMPDIR/agentbox.
	templateDir string
}

// NewLima returns a Lima driver. home locates ~/.lima on the host.
func NewLima(run process.Runner, log *slog.Logger, home string) *Lima {
	return &Lima{
		run:         run,
		log:         log,
		home:        home,
		sleep:       time.Sleep,
		templateDir: filepath.Join(os.TempDir(), "agentbox"),
	}
}

func (l *Lima) Name() string { return config.RuntimeLima }

func (l *Lima) Traits() Traits {
	return Traits{
		RestartAfterCreate: true,
		GatewayHost:        "host.lima.internal",
		DefaultGatewayIP:   "192.168.5.2",
	}
}

// limaInstance is one line of `limactl list --json`.
type limaInstance struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

func (l *Lima) State(ctx context.Context, name string) (State, error) {
	res, err := l.run.Capture(ctx, "limactl", "list", "--json", name)
	if err != nil {
		return StateNotFound, fmt.Errorf("querying lima: %w", err)
	}
	if res.Status != 0 {
		return StateNotFound, nil
	}
	for _, inst := range parseLimaList(res.Stdout) {
		if inst.Name == name {
			return inst.State, nil
		}
	}
	return StateNotFound, nil
}

func (l *Lima) List(ctx context.Context) ([]Instance, error) {
	res, err := l.run.Capture(ctx, "limactl", "list", "--json")
	if err != nil {
		return nil, fmt.Errorf("listing lima instances: %w", err)
	}
	if res.Status != 0 {
		return nil, fmt.Errorf("limactl list exited %d: %s", res.Status, strings.TrimSpace(res.Stderr))
	}
	return parseLimaList(res.Stdout), nil
}

// parseLimaList reads JSON lines, skipping lines that do not parse.
func parseLimaList(out string) []Instance {
	var instances []Instance
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var inst limaInstance
		if err := json.Unmarshal([]byte(line), &inst); err != nil {
			continue
		}
		instances = append(instances, Instance{Name: inst.Name, State: limaState(inst.Status)})
	}
	return instances
}

func limaState(status string) State {
	switch status {
	case "Running":
		return StateRunning
	case "Stopped":
		return StateStopped
	case "Broken":
		return StateBroken
	default:
		return StateNotFound
	}
}

func (l *Lima) Create(ctx context.Context, id Identity, cfg *config.Resolved) (int, error) {
	data, err := BuildTemplate(cfg)
	if err != nil {
		return 1, err
	}
	if err := os.MkdirAll(l.templateDir, 0o755); err != nil {
		return 1, fmt.Errorf("creating template dir: %w", err)
	}
	path := filepath.Join(l.templateDir, id.Name+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 1, fmt.Errorf("writing lima template: %w", err)
	}

	l.log.Info(fmt.Sprintf("creating VM '%s'...", id.Name))
	return l.run.Inherit(ctx, "limactl", "create", "--name", id.Name, "--yes", path)
}

func (l *Lima) Start(ctx context.Context, name string) (int, error) {
	l.log.Info(fmt.Sprintf("starting VM '%s'...", name))
	return l.run.Inherit(ctx, "limactl", "start", name)
}

func (l *Lima) Stop(ctx context.Context, name string) (int, error) {
	return l.run.Inherit(ctx, "limactl", "stop", name)
}

func (l *Lima) Remove(ctx context.Context, name string) (int, error) {
	return l.run.Inherit(ctx, "limactl", "delete", "--force", name)
}

// ExecInteractive goes through ssh with forced PTY allocation; `limactl
// shell` does not allocate one and full-screen agent UIs hang without it.
func (l *Lima) ExecInteractive(ctx context.Context, name string, opts ExecOptions) (int, error) {
	parts := []string{`export PATH="$HOME/.local/bin:$PATH"`}
	parts = append(parts, envExports(opts.Env)...)
	parts = append(parts, ". "+EnvFile+" 2>/dev/null || true")
	if opts.WorkDir != "" {
		parts = append(parts, "cd "+shell.Quote(opts.WorkDir))
	}
	parts = append(parts, "exec "+shell.Join(opts.Command))

	sshConfig := filepath.Join(l.home, ".lima", name, "ssh.config")
	return l.run.Inherit(ctx, "ssh", "-t", "-t", "-F", sshConfig, "lima-"+name, "--", shell.AndThen(parts...))
}

func (l *Lima) ExecNonInteractive(ctx context.Context, name string, opts ExecOptions) (int, error) {
	return l.run.Inherit(ctx, "limactl", l.shellArgs(name, opts)...)
}

func (l *Lima) ExecCapture(ctx context.Context, name string, opts ExecOptions) (process.Result, error) {
	return l.run.Capture(ctx, "limactl", l.shellArgs(name, opts)...)
}

// shellArgs wraps the command in `sh -c` so $HOME and $PATH expand inside
// the guest; `limactl shell -- env K=V` would pass them literally.
func (l *Lima) shellArgs(name string, opts ExecOptions) []string {
	args := []string{"shell"}
	if opts.WorkDir != "" {
		args = append(args, "--workdir", opts.WorkDir)
	}
	args = append(args, name, "--")
	return append(args, shellCommand(opts.Command, opts.Env)...)
}

func shellCommand(command []string, env map[string]string) []string {
	parts := []string{`export PATH="$HOME/.local/bin:$PATH"`}
	parts = append(parts, envExports(env)...)
	parts = append(parts, "exec "+shell.Join(command))
	return []string{"sh", "-c", shell.AndThen(parts...)}
}

// envExports skips keys that are not shell identifiers; they would be
// pasted into the script unquoted.
func envExports(env map[string]string) []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if !config.ValidEnvKey(k) {
			continue
		}
		out = append(out, "export "+k+"="+shell.Quote(env[k]))
	}
	return out
}

func (l *Lima) CopyFileIn(ctx context.Context, name, hostPath, sandboxPath string) (int, error) {
	return l.run.Inherit(ctx, "limactl", "copy", hostPath, name+":"+sandboxPath)
}

// ApplyNetworkPolicy is unsupported: Lima has no outbound proxy of its own.
func (l *Lima) ApplyNetworkPolicy(context.Context, string, config.NetworkPolicy) (int, error) {
	return 0, ErrUnsupported
}

func (l *Lima) WaitReady(ctx context.Context, name string, timeout time.Duration) {
	waitReady(ctx, l, name, timeout, l.sleep, l.log)
}
