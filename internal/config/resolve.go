package config

import (
	"fmt"
	"maps"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/sky1core/agentbox/internal/agent"
)

// Runtime backends.
const (
	RuntimeLima   = "lima"
	RuntimeDocker = "docker"
)

// Defaults applied when neither config file sets a value.
const (
	DefaultRuntime        = RuntimeLima
	DefaultCPUs           = 4
	DefaultMemory         = "8GiB"
	DefaultDisk           = "50GiB"
	DefaultStartupWaitSec = 60
)

// caBundlePath is where Ubuntu's update-ca-certificates writes the bundle.
const caBundlePath = "/etc/ssl/certs/ca-certificates.crt"

// Resolved is the fully merged configuration for one agent invocation.
// It is built once and treated as read-only afterwards.
type Resolved struct {
	Workspace      string
	Runtime        string
	VM             VMConfig
	Mounts         []Mount
	StartupWaitSec int
	Env            map[string]string
	Network        NetworkPolicy
	Bootstrap      Bootstrap
	RemoteWrite    bool
	SyncFiles      []string
	CACerts        string
	Agent          AgentConfig
}

type Bootstrap struct {
	OnCreate []string
	OnStart  []string
}

type AgentConfig struct {
	Spec        agent.Spec
	Binary      string
	DefaultArgs []string
	ExecMode    agent.ExecMode
	Model       string
	SandboxName string
	Credentials Credentials
}

type Credentials struct {
	Enabled bool
	Files   []string
}

var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidEnvKey reports whether k can be exported as a shell variable.
func ValidEnvKey(k string) bool {
	return envKeyPattern.MatchString(k)
}

// Resolve merges hardcoded defaults, the global config and the local config
// for one agent.
func Resolve(kind string, local *LocalConfig, global *GlobalConfig, h Host) (*Resolved, error) {
	spec, ok := agent.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", kind)
	}
	if local == nil {
		local = &LocalConfig{}
	}
	if global == nil {
		global = &GlobalConfig{}
	}

	workspace := local.Workspace
	if workspace == "" {
		workspace = h.Cwd
	}
	workspace = filepath.Clean(h.ExpandHome(workspace))

	rt := firstNonEmpty(h.Env("AGENTBOX_RUNTIME"), local.Runtime, global.Runtime, DefaultRuntime)
	if rt != RuntimeLima && rt != RuntimeDocker {
		return nil, fmt.Errorf("unknown runtime %q (want %s or %s)", rt, RuntimeLima, RuntimeDocker)
	}

	globalAgent := global.Agents[kind]
	localAgent := local.Agents[kind]

	execMode := spec.ExecMode
	if globalAgent.ExecMode != "" {
		execMode = agent.ExecMode(globalAgent.ExecMode)
		if execMode != agent.ExecModeRun && execMode != agent.ExecModeExec {
			return nil, fmt.Errorf("agents.%s.execMode: unknown mode %q", kind, globalAgent.ExecMode)
		}
	}

	network := NetworkPolicy{}
	switch {
	case local.Network != nil:
		network = *local.Network
	case global.Network != nil:
		network = *global.Network
	}
	network.Policy = strings.ToLower(strings.TrimSpace(network.Policy))
	if network.Policy != "" && network.Policy != "allow" && network.Policy != "deny" {
		return nil, fmt.Errorf("network.policy: want allow or deny, got %q", network.Policy)
	}

	env := make(map[string]string, len(global.Env)+len(local.Env))
	maps.Copy(env, global.Env)
	maps.Copy(env, local.Env)
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if !ValidEnvKey(k) {
			return nil, fmt.Errorf("env: invalid variable name %q (want [A-Za-z_][A-Za-z0-9_]*)", k)
		}
	}

	caCerts := CollectCACerts(h, firstNonEmpty(local.CACert, global.CACert))
	if caCerts != "" {
		if _, set := env["NODE_EXTRA_CA_CERTS"]; !set {
			env["NODE_EXTRA_CA_CERTS"] = caBundlePath
		}
	}

	mounts := global.Mounts
	if local.Mounts != nil {
		mounts = local.Mounts
	}
	resolvedMounts := make([]Mount, 0, len(mounts))
	for _, m := range mounts {
		m.Location = h.ExpandHome(m.Location)
		resolvedMounts = append(resolvedMounts, m)
	}

	remoteWrite := false
	switch {
	case local.Sync.RemoteWrite != nil:
		remoteWrite = *local.Sync.RemoteWrite
	case global.Sync.RemoteWrite != nil:
		remoteWrite = *global.Sync.RemoteWrite
	}

	syncFiles := global.Sync.Files
	if local.Sync.Files != nil {
		syncFiles = local.Sync.Files
	}

	creds := Credentials{Enabled: true}
	for _, c := range []*CredentialsConfig{globalAgent.Credentials, localAgent.Credentials} {
		if c == nil {
			continue
		}
		if c.Enabled != nil {
			creds.Enabled = *c.Enabled
		}
		if c.Files != nil {
			creds.Files = slices.Clone(c.Files)
		}
	}

	sandboxName := localAgent.SandboxName
	if sandboxName == "" {
		sandboxName = DefaultSandboxName(rt, spec.Kind, workspace)
	}

	defaultArgs := spec.DefaultArgs
	if globalAgent.DefaultArgs != nil {
		defaultArgs = globalAgent.DefaultArgs
	}

	startupWait := DefaultStartupWaitSec
	switch {
	case local.StartupWaitSec != nil:
		startupWait = *local.StartupWaitSec
	case global.Defaults.StartupWaitSec != nil:
		startupWait = *global.Defaults.StartupWaitSec
	}
	if startupWait < 0 {
		return nil, fmt.Errorf("startupWaitSec: must not be negative, got %d", startupWait)
	}

	return &Resolved{
		Workspace: workspace,
		Runtime:   rt,
		VM: VMConfig{
			CPUs:   firstPositive(local.VM.CPUs, global.VM.CPUs, DefaultCPUs),
			Memory: firstNonEmpty(local.VM.Memory, global.VM.Memory, DefaultMemory),
			Disk:   firstNonEmpty(local.VM.Disk, global.VM.Disk, DefaultDisk),
		},
		Mounts:         resolvedMounts,
		StartupWaitSec: startupWait,
		Env:            env,
		Network:        network,
		Bootstrap: Bootstrap{
			OnCreate: concat(global.Bootstrap.OnCreateScript, local.Bootstrap.OnCreateScript),
			OnStart:  concat(global.Bootstrap.OnStartScript, local.Bootstrap.OnStartScript),
		},
		RemoteWrite: remoteWrite,
		SyncFiles:   slices.Clone(syncFiles),
		CACerts:     caCerts,
		Agent: AgentConfig{
			Spec:        spec,
			Binary:      firstNonEmpty(globalAgent.Binary, spec.Binary),
			DefaultArgs: slices.Clone(defaultArgs),
			ExecMode:    execMode,
			Model:       firstNonEmpty(localAgent.Model, globalAgent.Model),
			SandboxName: sandboxName,
			Credentials: creds,
		},
	}, nil
}

// DefaultSandboxName is "agentbox-<project>" for VMs, where one VM serves
// every agent, and "<agent>-<project>" for docker sandboxes, which are
// created per agent.
func DefaultSandboxName(rt string, kind agent.Kind, workspace string) string {
	project := filepath.Base(workspace)
	if rt == RuntimeDocker {
		return string(kind) + "-" + project
	}
	return "agentbox-" + project
}

func concat(lists ...ScriptList) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}
