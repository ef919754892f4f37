package agent

import (
	"path/filepath"
	"reflect"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"codex", "claude", "kiro", "gemini", "copilot", "cagent"} {
		if _, ok := Lookup(name); !ok {
			t.Errorf("Lookup(%q) failed", name)
		}
	}
	for _, name := range []string{"", "unknown", "CODEX", "Claude"} {
		if _, ok := Lookup(name); ok {
			t.Errorf("Lookup(%q) should fail", name)
		}
	}
}

func TestAllSorted(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("len(All()) = %d, want 6", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Kind >= all[i].Kind {
			t.Errorf("All() not sorted at %d: %s >= %s", i, all[i-1].Kind, all[i].Kind)
		}
	}
}

func TestWithDefaultModel(t *testing.T) {
	tests := []struct {
		name  string
		kind  Kind
		argv  []string
		model string
		want  []string
	}{
		{"top level", Codex, []string{"exec", "hi"}, "o3", []string{"--model", "o3", "exec", "hi"}},
		{"no model", Claude, []string{"hi"}, "", []string{"hi"}},
		{"user passed --model", Claude, []string{"--model", "opus"}, "sonnet", []string{"--model", "opus"}},
		{"user passed --model=", Gemini, []string{"--model=pro"}, "flash", []string{"--model=pro"}},
		{"user passed -m", Codex, []string{"-m", "x"}, "y", []string{"-m", "x"}},
		{"kiro after chat", Kiro, []string{"chat", "--trust-all-tools"}, "k1", []string{"chat", "--model", "k1", "--trust-all-tools"}},
		{"kiro without chat", Kiro, []string{"whoami"}, "k1", []string{"whoami"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MustLookup(tt.kind).WithDefaultModel(tt.argv, tt.model)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithDefaultModelDoesNotAlias(t *testing.T) {
	argv := make([]string, 2, 8)
	argv[0], argv[1] = "chat", "x"
	_ = MustLookup(Kiro).WithDefaultModel(argv, "m")
	if argv[1] != "x" {
		t.Errorf("input argv modified: %v", argv)
	}
}

func TestKiroCredentialsByOS(t *testing.T) {
	home := "/home/dev"
	darwin := MustLookup(Kiro).Credentials(home, "darwin")
	if len(darwin) != 1 || darwin[0].HostPath != filepath.Join(home, "Library", "Application Support", "kiro-cli", "data.sqlite3") {
		t.Errorf("darwin credentials = %+v", darwin)
	}
	linux := MustLookup(Kiro).Credentials(home, "linux")
	if len(linux) != 1 || linux[0].HostPath != filepath.Join(home, ".local", "share", "kiro-cli", "data.sqlite3") {
		t.Errorf("linux credentials = %+v", linux)
	}
	if darwin[0].Dest != linux[0].Dest {
		t.Errorf("destinations differ: %q vs %q", darwin[0].Dest, linux[0].Dest)
	}
}

func TestCommonCredentials(t *testing.T) {
	got := CommonCredentials("/home/dev")
	if got[0].Dest != ".host-gitconfig" {
		t.Errorf("gitconfig must land at .host-gitconfig, got %q", got[0].Dest)
	}
	for _, c := range got {
		if filepath.Dir(c.HostPath) == "" {
			t.Errorf("empty host path for %+v", c)
		}
	}
}
