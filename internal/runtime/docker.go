package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/shell"
)

// Docker drives `docker sandbox` instances, one per agent and workspace.
type Docker struct {
	run   process.Runner
	log   *slog.Logger
	sleep func(time.Duration)
}

func NewDocker(run process.Runner, log *slog.Logger) *Docker {
	return &Docker{run: run, log: log, sleep: time.Sleep}
}

func (d *Docker) Name() string { return config.RuntimeDocker }

func (d *Docker) Traits() Traits {
	return Traits{
		GatewayHost:      "host.docker.internal",
		DefaultGatewayIP: "192.168.65.254",
	}
}

func (d *Docker) State(ctx context.Context, name string) (State, error) {
	res, err := d.run.Capture(ctx, "docker", "sandbox", "ls")
	if err != nil {
		return StateNotFound, fmt.Errorf("querying docker sandboxes: %w", err)
	}
	for _, inst := range parseSandboxList(res.Stdout) {
		if inst.Name == name {
			return inst.State, nil
		}
	}
	return StateNotFound, nil
}

func (d *Docker) List(ctx context.Context) ([]Instance, error) {
	res, err := d.run.Capture(ctx, "docker", "sandbox", "ls")
	if err != nil {
		return nil, fmt.Errorf("listing docker sandboxes: %w", err)
	}
	if res.Status != 0 {
		return nil, fmt.Errorf("docker sandbox ls exited %d: %s", res.Status, strings.TrimSpace(res.Stderr))
	}
	return parseSandboxList(res.Stdout), nil
}

// parseSandboxList reads the `docker sandbox ls` table:
//
//	NAME              AGENT    STATUS
//	codex-myproj      codex    running
//
// The command has no --format flag, so columns are whitespace separated.
func parseSandboxList(out string) []Instance {
	var instances []Instance
	for _, line := range strings.Split(out, "\n") {
		cols := strings.Fields(line)
		if len(cols) == 0 || cols[0] == "NAME" {
			continue
		}
		inst := Instance{Name: cols[0]}
		if len(cols) > 1 {
			inst.Agent = cols[1]
		}
		if len(cols) > 2 {
			inst.State = sandboxState(cols[2])
		}
		instances = append(instances, inst)
	}
	return instances
}

func sandboxState(status string) State {
	switch strings.ToLower(status) {
	case "running":
		return StateRunning
	case "stopped":
		return StateStopped
	default:
		return StateNotFound
	}
}

func (d *Docker) Create(ctx context.Context, id Identity, _ *config.Resolved) (int, error) {
	d.log.Info(fmt.Sprintf("creating sandbox '%s'...", id.Name))
	return d.run.Inherit(ctx, "docker", "sandbox", "create", "--name", id.Name, string(id.Agent), id.Workspace)
}

// Start launches the sandbox in the background. `docker sandbox run`
// attaches to the agent, so it is detached rather than waited on; the
// exit code is 0 once the process has been spawned.
func (d *Docker) Start(_ context.Context, name string) (int, error) {
	d.log.Info(fmt.Sprintf("starting %s...", name))
	if err := d.run.Detach("docker", "sandbox", "run", name); err != nil {
		return process.ExitNotStarted, err
	}
	return 0, nil
}

func (d *Docker) Stop(ctx context.Context, name string) (int, error) {
	return d.run.Inherit(ctx, "docker", "sandbox", "stop", name)
}

func (d *Docker) Remove(ctx context.Context, name string) (int, error) {
	return d.run.Inherit(ctx, "docker", "sandbox", "rm", name)
}

// RunAgent hands the terminal to the sandbox's own agent launcher.
func (d *Docker) RunAgent(ctx context.Context, name string, args []string) (int, error) {
	argv := []string{"sandbox", "run", name}
	if len(args) > 0 {
		argv = append(argv, "--")
		argv = append(argv, args...)
	}
	return d.run.Inherit(ctx, "docker", argv...)
}

func (d *Docker) ExecInteractive(ctx context.Context, name string, opts ExecOptions) (int, error) {
	return d.run.Inherit(ctx, "docker", execArgs(name, opts, "-it")...)
}

func (d *Docker) ExecNonInteractive(ctx context.Context, name string, opts ExecOptions) (int, error) {
	return d.run.Inherit(ctx, "docker", execArgs(name, opts)...)
}

func (d *Docker) ExecCapture(ctx context.Context, name string, opts ExecOptions) (process.Result, error) {
	return d.run.Capture(ctx, "docker", execArgs(name, opts)...)
}

func execArgs(name string, opts ExecOptions, flags ...string) []string {
	args := append([]string{"sandbox", "exec"}, flags...)
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	for _, k := range slices.Sorted(maps.Keys(opts.Env)) {
		if !config.ValidEnvKey(k) {
			continue
		}
		args = append(args, "-e", k+"="+opts.Env[k])
	}
	args = append(args, name)
	return append(args, opts.Command...)
}

// CopyFileIn streams the file over stdin; docker sandboxes have no cp.
func (d *Docker) CopyFileIn(ctx context.Context, name, hostPath, sandboxPath string) (int, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return 1, fmt.Errorf("opening %s: %w", hostPath, err)
	}
	defer f.Close()

	script := shell.AndThen(
		"mkdir -p "+shell.Quote(path.Dir(sandboxPath)),
		"cat > "+shell.Quote(sandboxPath),
	)
	return d.run.Feed(ctx, f, "docker", "sandbox", "exec", "-i", name, "sh", "-c", script)
}

func (d *Docker) ApplyNetworkPolicy(ctx context.Context, name string, policy config.NetworkPolicy) (int, error) {
	return d.run.Inherit(ctx, "docker", NetworkProxyArgs(name, policy)...)
}

// NetworkProxyArgs builds `docker sandbox network proxy` arguments. Blank
// entries are dropped.
func NetworkProxyArgs(name string, policy config.NetworkPolicy) []string {
	args := []string{"sandbox", "network", "proxy", name}
	if p := strings.TrimSpace(policy.Policy); p != "" {
		args = append(args, "--policy", p)
	}
	lists := []struct {
		flag   string
		values []string
	}{
		{"--allow-host", policy.AllowHosts},
		{"--block-host", policy.BlockHosts},
		{"--allow-cidr", policy.AllowCIDRs},
		{"--block-cidr", policy.BlockCIDRs},
		{"--bypass-host", policy.BypassHosts},
		{"--bypass-cidr", policy.BypassCIDRs},
	}
	for _, l := range lists {
		for _, v := range l.values {
			if v = strings.TrimSpace(v); v != "" {
				args = append(args, l.flag, v)
			}
		}
	}
	return args
}

func (d *Docker) WaitReady(ctx context.Context, name string, timeout time.Duration) {
	waitReady(ctx, d, name, timeout, d.sleep, d.log)
}
