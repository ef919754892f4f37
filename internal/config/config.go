package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	// LocalConfigFile is searched upward from the working directory.
	LocalConfigFile = "agentbox.yml"
	// GlobalConfigFile lives under GlobalDir in the user's home.
	GlobalConfigFile = "config.yml"
	GlobalDir        = ".config/agentbox"
	// StateFile holds the sandbox registry, next to the global config.
	StateFile = "state.json"
	// Dir holds project-local assets written by `agentbox init`.
	Dir = ".agentbox"
)

// ScriptList accepts either a single path or a list of paths in YAML.
type ScriptList []string

func (s *ScriptList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var one string
		if err := node.Decode(&one); err != nil {
			return err
		}
		if one == "" {
			*s = nil
			return nil
		}
		*s = ScriptList{one}
		return nil
	case yaml.SequenceNode:
		var many []string
		if err := node.Decode(&many); err != nil {
			return err
		}
		*s = many
		return nil
	default:
		return fmt.Errorf("line %d: bootstrap script must be a path or a list of paths", node.Line)
	}
}

type BootstrapConfig struct {
	OnCreateScript ScriptList `yaml:"onCreateScript,omitempty"`
	OnStartScript  ScriptList `yaml:"onStartScript,omitempty"`
}

type SyncConfig struct {
	RemoteWrite *bool `yaml:"remoteWrite,omitempty"`
	// Files are ~/ paths copied to the same place in the sandbox home.
	Files []string `yaml:"files,omitempty"`
}

type VMConfig struct {
	CPUs   int    `yaml:"cpus,omitempty"`
	Memory string `yaml:"memory,omitempty"`
	Disk   string `yaml:"disk,omitempty"`
}

type Mount struct {
	Location   string `yaml:"location"`
	MountPoint string `yaml:"mountPoint,omitempty"`
	Writable   bool   `yaml:"writable,omitempty"`
}

// NetworkPolicy is the outbound proxy policy applied to a sandbox.
type NetworkPolicy struct {
	Policy      string   `yaml:"policy,omitempty"`
	AllowHosts  []string `yaml:"allowHosts,omitempty"`
	BlockHosts  []string `yaml:"blockHosts,omitempty"`
	AllowCIDRs  []string `yaml:"allowCidrs,omitempty"`
	BlockCIDRs  []string `yaml:"blockCidrs,omitempty"`
	BypassHosts []string `yaml:"bypassHosts,omitempty"`
	BypassCIDRs []string `yaml:"bypassCidrs,omitempty"`
}

// IsZero reports whether the policy has no stance and no entries.
func (p NetworkPolicy) IsZero() bool {
	return p.Policy == "" &&
		len(p.AllowHosts) == 0 && len(p.BlockHosts) == 0 &&
		len(p.AllowCIDRs) == 0 && len(p.BlockCIDRs) == 0 &&
		len(p.BypassHosts) == 0 && len(p.BypassCIDRs) == 0
}

type CredentialsConfig struct {
	Enabled *bool    `yaml:"enabled,omitempty"`
	Files   []string `yaml:"files,omitempty"`
}

type AgentGlobalConfig struct {
	ExecMode    string             `yaml:"execMode,omitempty"`
	Binary      string             `yaml:"binary,omitempty"`
	DefaultArgs []string           `yaml:"defaultArgs,omitempty"`
	Model       string             `yaml:"model,omitempty"`
	Credentials *CredentialsConfig `yaml:"credentials,omitempty"`
}

type DefaultsConfig struct {
	StartupWaitSec *int `yaml:"startupWaitSec,omitempty"`
}

// GlobalConfig is ~/.config/agentbox/config.yml.
type GlobalConfig struct {
	Runtime   string                       `yaml:"runtime,omitempty"`
	Sync      SyncConfig                   `yaml:"sync,omitempty"`
	Defaults  DefaultsConfig               `yaml:"defaults,omitempty"`
	VM        VMConfig                     `yaml:"vm,omitempty"`
	Mounts    []Mount                      `yaml:"mounts,omitempty"`
	CACert    string                       `yaml:"caCert,omitempty"`
	Env       map[string]string            `yaml:"env,omitempty"`
	Network   *NetworkPolicy               `yaml:"network,omitempty"`
	Bootstrap BootstrapConfig              `yaml:"bootstrap,omitempty"`
	Agents    map[string]AgentGlobalConfig `yaml:"agents,omitempty"`
}

type AgentLocalConfig struct {
	SandboxName string             `yaml:"sandboxName,omitempty"`
	Model       string             `yaml:"model,omitempty"`
	Credentials *CredentialsConfig `yaml:"credentials,omitempty"`
}

// LocalConfig is a project's agentbox.yml.
type LocalConfig struct {
	Workspace      string                      `yaml:"workspace,omitempty"`
	Runtime        string                      `yaml:"runtime,omitempty"`
	Sync           SyncConfig                  `yaml:"sync,omitempty"`
	StartupWaitSec *int                        `yaml:"startupWaitSec,omitempty"`
	VM             VMConfig                    `yaml:"vm,omitempty"`
	Mounts         []Mount                     `yaml:"mounts,omitempty"`
	CACert         string                      `yaml:"caCert,omitempty"`
	Env            map[string]string           `yaml:"env,omitempty"`
	Network        *NetworkPolicy              `yaml:"network,omitempty"`
	Bootstrap      BootstrapConfig             `yaml:"bootstrap,omitempty"`
	Agents         map[string]AgentLocalConfig `yaml:"agents,omitempty"`
}

func loadYAML(path string, out any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("parsing %s: %w", path, err)
	}
	return true, nil
}

// GlobalConfigPath returns the path of the global config for host.
func GlobalConfigPath(h Host) string {
	return filepath.Join(h.Home, filepath.FromSlash(GlobalDir), GlobalConfigFile)
}

// LoadGlobal reads the global config. A missing file yields an empty config.
func LoadGlobal(h Host) (*GlobalConfig, error) {
	var cfg GlobalConfig
	if _, err := loadYAML(GlobalConfigPath(h), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindLocal searches upward from startDir for agentbox.yml and returns its
// path, or "" when none exists.
func FindLocal(startDir string) string {
	dir := startDir
	for {
		candidate := filepath.Join(dir, LocalConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadLocal loads the nearest agentbox.yml above startDir. Without one, the
// workspace defaults to startDir. A relative workspace is resolved against
// the config file's directory.
func LoadLocal(startDir string) (*LocalConfig, error) {
	path := FindLocal(startDir)
	if path == "" {
		return &LocalConfig{Workspace: startDir}, nil
	}
	var cfg LocalConfig
	if _, err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	switch {
	case cfg.Workspace == "":
		cfg.Workspace = filepath.Dir(path)
	case !filepath.IsAbs(cfg.Workspace):
		cfg.Workspace = filepath.Join(filepath.Dir(path), cfg.Workspace)
	}
	return &cfg, nil
}

// Save writes cfg to <projectDir>/agentbox.yml.
func Save(projectDir string, cfg *LocalConfig) error {
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return fmt.Errorf("creating project dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(filepath.Join(projectDir, LocalConfigFile), data, 0o644)
}

// Exists returns true if <projectDir>/agentbox.yml exists.
func Exists(projectDir string) bool {
	_, err := os.Stat(filepath.Join(projectDir, LocalConfigFile))
	return err == nil
}
