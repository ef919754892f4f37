package sandbox

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sky1core/agentbox/internal/agent"
	"github.com/sky1core/agentbox/internal/config"
)

func TestStateLoadSave(t *testing.T) {
	home := t.TempDir()
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	state := newState()
	state.Sandboxes["agentbox-proj"] = &Entry{
		Name:          "agentbox-proj",
		Agent:         agent.Claude,
		Runtime:       config.RuntimeLima,
		Workspace:     "/work/proj",
		CreatedAt:     created,
		LastEnsuredAt: created.Add(time.Minute),
	}

	if err := saveState(home, state); err != nil {
		t.Fatalf("saveState: %v", err)
	}
	if _, err := os.Stat(filepath.Join(home, ".config", "agentbox", "state.json")); err != nil {
		t.Fatalf("state file not written: %v", err)
	}

	loaded, err := loadState(home)
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}

	e, ok := loaded.Sandboxes["agentbox-proj"]
	if !ok {
		t.Fatal("sandbox 'agentbox-proj' not found in loaded state")
	}
	if e.Agent != agent.Claude {
		t.Errorf("Agent = %q, want %q", e.Agent, agent.Claude)
	}
	if !e.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", e.CreatedAt, created)
	}
	if e.Workspace != "/work/proj" {
		t.Errorf("Workspace = %q", e.Workspace)
	}
}

func TestStateLoadMissing(t *testing.T) {
	state, err := loadState(t.TempDir())
	if err != nil {
		t.Fatalf("loadState: %v", err)
	}
	if len(state.Sandboxes) != 0 {
		t.Errorf("expected empty state, got %d sandboxes", len(state.Sandboxes))
	}
}

func TestStateLoadCorrupt(t *testing.T) {
	home := t.TempDir()
	path := statePath(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadState(home); err == nil {
		t.Error("expected a parse error")
	}
}
