package sandbox

import (
	"fmt"
	"time"

	"github.com/sky1core/agentbox/internal/agent"
)

// Entry is the registry record of a sandbox agentbox has brought up. The
// runtime stays the source of truth for its state.
type Entry struct {
	Name          string     `json:"name"`
	Agent         agent.Kind `json:"agent"`
	Runtime       string     `json:"runtime"`
	Workspace     string     `json:"workspace"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastEnsuredAt time.Time  `json:"lastEnsuredAt"`
}

// LifecycleError reports a runtime lifecycle command that exited nonzero
// or could not be run.
type LifecycleError struct {
	Op       string
	Name     string
	ExitCode int
	Err      error
}

func (e *LifecycleError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Name, e.Err)
	}
	return fmt.Sprintf("failed to %s %s (exit=%d)", e.Op, e.Name, e.ExitCode)
}

func (e *LifecycleError) Unwrap() error { return e.Err }

// lifecycle turns a driver result into a *LifecycleError, or nil on success.
func lifecycle(op, name string, code int, err error) error {
	if err != nil || code != 0 {
		return &LifecycleError{Op: op, Name: name, ExitCode: code, Err: err}
	}
	return nil
}
