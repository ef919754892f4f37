package sandbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sky1core/agentbox/internal/config"
)

// State is the on-disk registry of sandboxes, keyed by sandbox name.
type State struct {
	Sandboxes map[string]*Entry `json:"sandboxes"`
}

func newState() *State {
	return &State{Sandboxes: make(map[string]*Entry)}
}

func statePath(home string) string {
	return filepath.Join(home, filepath.FromSlash(config.GlobalDir), config.StateFile)
}

func loadState(home string) (*State, error) {
	data, err := os.ReadFile(statePath(home))
	if err != nil {
		if os.IsNotExist(err) {
			return newState(), nil
		}
		return nil, fmt.Errorf("reading state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if s.Sandboxes == nil {
		s.Sandboxes = make(map[string]*Entry)
	}
	return &s, nil
}

func saveState(home string, s *State) error {
	path := statePath(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling state: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing state: %w", err)
	}
	return os.Rename(tmp, path)
}
