// Package agent describes the coding-agent CLIs agentbox knows how to run.
// Each agent is a Spec selected once during config resolution; callers
// dispatch through its fields instead of comparing names.
package agent

import (
	"fmt"
	"path/filepath"
	"sort"
)

// Kind names an agent.
type Kind string

const (
	Codex   Kind = "codex"
	Claude  Kind = "claude"
	Kiro    Kind = "kiro"
	Gemini  Kind = "gemini"
	Copilot Kind = "copilot"
	Cagent  Kind = "cagent"
)

// ExecMode selects how the agent CLI is launched inside the sandbox.
type ExecMode string

const (
	// ExecModeRun hands the terminal to the runtime's own agent launcher
	// when it has one.
	ExecModeRun ExecMode = "run"
	// ExecModeExec runs the agent binary through a plain exec.
	ExecModeExec ExecMode = "exec"
)

// CredentialFile is one host file copied into the sandbox. Dest is
// relative to the sandbox user's home directory.
type CredentialFile struct {
	HostPath string
	Dest     string
}

// Spec is the capability record for one agent.
type Spec struct {
	Kind        Kind
	Description string
	Binary      string
	DefaultArgs []string
	ExecMode    ExecMode
	// Model injects a default model flag into argv.
	Model ModelFlagStrategy
	// Credentials lists the agent-specific files to inject, given the host
	// home directory and GOOS.
	Credentials func(home, goos string) []CredentialFile
}

var specs = map[Kind]Spec{
	Codex: {
		Kind:        Codex,
		Description: "OpenAI Codex CLI",
		Binary:      "codex",
		DefaultArgs: []string{"--ask-for-approval", "never"},
		ExecMode:    ExecModeExec,
		Model:       TopLevelModel,
		Credentials: homeFiles(".codex/auth.json"),
	},
	Claude: {
		Kind:        Claude,
		Description: "Claude Code",
		Binary:      "claude",
		DefaultArgs: []string{"--dangerously-skip-permissions"},
		ExecMode:    ExecModeRun,
		Model:       TopLevelModel,
		Credentials: homeFiles(".claude/.credentials.json", ".claude.json"),
	},
	Kiro: {
		Kind:        Kiro,
		Description: "Kiro",
		Binary:      "kiro-cli",
		DefaultArgs: []string{"chat", "--trust-all-tools"},
		ExecMode:    ExecModeRun,
		Model:       ModelAfterSubcommand("chat"),
		Credentials: kiroCredentials,
	},
	Gemini: {
		Kind:        Gemini,
		Description: "Gemini CLI",
		Binary:      "gemini",
		DefaultArgs: []string{"-y"},
		ExecMode:    ExecModeExec,
		Model:       TopLevelModel,
		Credentials: homeFiles(
			".gemini/oauth_creds.json",
			".gemini/state.json",
			".gemini/google_account_id",
			".gemini/google_accounts.json",
			".gemini/installation_id",
		),
	},
	Copilot: {
		Kind:        Copilot,
		Description: "GitHub Copilot",
		Binary:      "copilot",
		ExecMode:    ExecModeRun,
		Model:       TopLevelModel,
		Credentials: noCredentials,
	},
	Cagent: {
		Kind:        Cagent,
		Description: "Cagent",
		Binary:      "cagent",
		ExecMode:    ExecModeRun,
		Model:       TopLevelModel,
		Credentials: noCredentials,
	},
}

// Lookup returns the catalogue entry for name. Names are case-sensitive.
func Lookup(name string) (Spec, bool) {
	s, ok := specs[Kind(name)]
	return s, ok
}

// MustLookup is Lookup for kinds known at compile time.
func MustLookup(k Kind) Spec {
	s, ok := specs[k]
	if !ok {
		panic(fmt.Sprintf("agent: unknown kind %q", k))
	}
	return s
}

// All returns every agent spec sorted by kind.
func All() []Spec {
	out := make([]Spec, 0, len(specs))
	for _, s := range specs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// CommonCredentials are injected for every agent: git identity, netrc and
// the GitHub CLI host config.
func CommonCredentials(home string) []CredentialFile {
	return []CredentialFile{
		{HostPath: filepath.Join(home, ".gitconfig"), Dest: ".host-gitconfig"},
		{HostPath: filepath.Join(home, ".netrc"), Dest: ".netrc"},
		{HostPath: filepath.Join(home, ".config", "gh", "hosts.yml"), Dest: ".config/gh/hosts.yml"},
		{HostPath: filepath.Join(home, ".config", "gh", "config.yml"), Dest: ".config/gh/config.yml"},
	}
}

func homeFiles(rel ...string) func(home, goos string) []CredentialFile {
	return func(home, _ string) []CredentialFile {
		out := make([]CredentialFile, 0, len(rel))
		for _, r := range rel {
			out = append(out, CredentialFile{HostPath: filepath.Join(home, filepath.FromSlash(r)), Dest: r})
		}
		return out
	}
}

func noCredentials(string, string) []CredentialFile { return nil }

// kiroCredentials maps the macOS application-support database to the
// location the Linux CLI reads. Other hosts already use the Linux layout.
func kiroCredentials(home, goos string) []CredentialFile {
	dest := ".local/share/kiro-cli/data.sqlite3"
	if goos == "darwin" {
		return []CredentialFile{{
			HostPath: filepath.Join(home, "Library", "Application Support", "kiro-cli", "data.sqlite3"),
			Dest:     dest,
		}}
	}
	return []CredentialFile{{HostPath: filepath.Join(home, filepath.FromSlash(dest)), Dest: dest}}
}
