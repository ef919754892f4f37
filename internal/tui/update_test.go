package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/logger"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/runtime/runtimetest"
	"github.com/sky1core/agentbox/internal/sandbox"
)

const registry = `{
  "sandboxes": {
    "agentbox-web": {"name": "agentbox-web", "agent": "claude", "runtime": "lima", "workspace": "/src/web", "createdAt": "2026-01-02T00:00:00Z"},
    "agentbox-api": {"name": "agentbox-api", "agent": "codex", "runtime": "lima", "workspace": "/src/api", "createdAt": "2026-01-01T00:00:00Z"},
    "gemini-cli":   {"name": "gemini-cli", "agent": "gemini", "runtime": "docker", "workspace": "/src/cli", "createdAt": "2026-01-03T00:00:00Z"}
  }
}`

func newTestModel(t *testing.T) (model, *runtimetest.Driver) {
	t.Helper()
	home := t.TempDir()
	path := filepath.Join(home, ".config", "agentbox", "state.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(registry), 0o644); err != nil {
		t.Fatal(err)
	}

	lima := &runtimetest.Driver{
		DriverName: config.RuntimeLima,
		Instances: []runtime.Instance{
			{Name: "agentbox-api", State: runtime.StateRunning},
			{Name: "agentbox-web", State: runtime.StateStopped},
		},
	}
	docker := &runtimetest.Driver{DriverName: config.RuntimeDocker}
	h := config.Host{Home: home}
	managers := []*sandbox.Manager{
		sandbox.NewManager(lima, h, nil, logger.Discard()),
		sandbox.NewManager(docker, h, nil, logger.Discard()),
	}

	m := newModel(context.Background(), managers, "")
	rows, err := loadRows(context.Background(), managers)
	if err != nil {
		t.Fatalf("loadRows: %v", err)
	}
	next, _ := m.Update(rowsLoadedMsg{rows: rows})
	return next.(model), lima
}

func press(t *testing.T, m model, keys ...string) (model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		next, c := m.Update(msg)
		m, cmd = next.(model), c
	}
	return m, cmd
}

func typeCommand(t *testing.T, m model, input string) (model, tea.Cmd) {
	t.Helper()
	m, _ = press(t, m, "/")
	m.input.SetValue(input)
	return press(t, m, "enter")
}

func TestLoadRowsJoinsRegistryAndLiveState(t *testing.T) {
	m, _ := newTestModel(t)

	var got []string
	for _, r := range m.rows {
		got = append(got, r.entry.Name+"="+r.state.String())
	}
	want := "agentbox-api=running,agentbox-web=stopped,gemini-cli=not found"
	if strings.Join(got, ",") != want {
		t.Errorf("rows = %v, want %s", got, want)
	}
}

func TestDoublePressStops(t *testing.T) {
	m, lima := newTestModel(t)

	m, cmd := press(t, m, "x")
	if m.confirmKey != "x" || m.confirmName != "agentbox-api" {
		t.Fatalf("confirm = %q %q", m.confirmKey, m.confirmName)
	}
	if lima.Count(runtimetest.OpStop) != 0 {
		t.Fatal("stopped before confirmation")
	}

	m, cmd = press(t, m, "x")
	if m.busy["agentbox-api"] != opStop {
		t.Errorf("busy = %v", m.busy)
	}
	msg := cmd()
	done, ok := msg.(opDoneMsg)
	if !ok || done.err != nil {
		t.Fatalf("msg = %#v", msg)
	}
	if lima.Count(runtimetest.OpStop) != 1 {
		t.Errorf("ops = %v", lima.Ops())
	}

	next, _ := m.Update(done)
	m = next.(model)
	if _, busy := m.busy["agentbox-api"]; busy || m.message != "Stopped agentbox-api" {
		t.Errorf("after done: busy=%v message=%q", m.busy, m.message)
	}
}

func TestConfirmationCancelledByOtherKey(t *testing.T) {
	m, lima := newTestModel(t)

	m, _ = press(t, m, "d", "j")
	if m.confirmKey != "" {
		t.Errorf("confirmation still pending: %q", m.confirmKey)
	}
	if m.cursor != 0 {
		t.Errorf("cancelling key should not also move the cursor, cursor = %d", m.cursor)
	}
	if lima.Count(runtimetest.OpRemove) != 0 {
		t.Error("removed without confirmation")
	}
}

func TestConfirmationExpires(t *testing.T) {
	m, _ := newTestModel(t)
	m, _ = press(t, m, "x")

	next, _ := m.Update(confirmExpiredMsg{key: "x", name: "agentbox-api"})
	m = next.(model)
	if m.confirmKey != "" {
		t.Error("confirmation did not expire")
	}
}

func TestEnterOpensShellOnlyWhenRunning(t *testing.T) {
	m, _ := newTestModel(t)

	running, cmd := press(t, m, "enter")
	if running.shellInto == nil || running.shellInto.entry.Name != "agentbox-api" {
		t.Fatalf("shellInto = %+v", running.shellInto)
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("opening a shell should quit the program")
	}

	stopped, _ := press(t, m, "j", "enter")
	if stopped.shellInto != nil {
		t.Error("shell opened on a stopped sandbox")
	}
	if !stopped.isError || !strings.Contains(stopped.message, "agentbox claude") {
		t.Errorf("message = %q", stopped.message)
	}
}

func TestSlashCommands(t *testing.T) {
	t.Run("rm by name", func(t *testing.T) {
		m, lima := newTestModel(t)
		m, cmd := typeCommand(t, m, "/rm agentbox-web")
		if m.busy["agentbox-web"] != opRemove {
			t.Fatalf("busy = %v", m.busy)
		}
		if done := cmd().(opDoneMsg); done.err != nil {
			t.Fatal(done.err)
		}
		if lima.Count(runtimetest.OpRemove) != 1 {
			t.Errorf("ops = %v", lima.Ops())
		}
	})

	t.Run("stop defaults to selection", func(t *testing.T) {
		m, lima := newTestModel(t)
		_, cmd := typeCommand(t, m, "stop")
		cmd()
		if lima.Count(runtimetest.OpStop) != 1 || lima.Calls[len(lima.Calls)-1].Name != "agentbox-api" {
			t.Errorf("ops = %v", lima.Ops())
		}
	})

	t.Run("unknown name", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, cmd := typeCommand(t, m, "/stop nope")
		if cmd != nil || !m.isError {
			t.Errorf("message = %q", m.message)
		}
	})

	t.Run("unknown command", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeCommand(t, m, "/merge x")
		if !m.isError || m.message != "Unknown command: /merge" {
			t.Errorf("message = %q", m.message)
		}
	})

	t.Run("quit", func(t *testing.T) {
		m, _ := newTestModel(t)
		m, _ = typeCommand(t, m, "/quit")
		if !m.quitting {
			t.Error("not quitting")
		}
	})
}

func TestViewListsSandboxes(t *testing.T) {
	m, _ := newTestModel(t)
	view := m.View()
	for _, want := range []string{"agentbox-api", "agentbox-web", "gemini-cli", "stopped", "[x] stop"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}
