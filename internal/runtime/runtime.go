// Package runtime drives the VM or container runtime that hosts a sandbox.
// Every operation is a thin blocking call to the runtime's CLI; drivers
// only build arguments and parse output.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sky1core/agentbox/internal/agent"
	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
)

// State is the lifecycle state of a sandbox as reported by the runtime.
type State int

const (
	StateNotFound State = iota
	StateStopped
	StateRunning
	StateBroken
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StateBroken:
		return "broken"
	default:
		return "not found"
	}
}

// ErrUnsupported is returned by operations a runtime has no equivalent for.
var ErrUnsupported = errors.New("not supported by this runtime")

// Identity names one runtime instance.
type Identity struct {
	Name      string
	Workspace string
	Agent     agent.Kind
}

// Instance is one row of a runtime listing.
type Instance struct {
	Name  string
	Agent string
	State State
}

// ExecOptions describes a command run inside a sandbox. An empty WorkDir
// leaves the runtime's default in place.
type ExecOptions struct {
	Command []string
	Env     map[string]string
	WorkDir string
}

// Traits are the behavioral differences between runtimes that the
// orchestrator and the network enforcer need to know about.
type Traits struct {
	// RestartAfterCreate requests a stop and a second start after the
	// first start of a new instance, so group membership changes made by
	// provisioning apply to the control connection.
	RestartAfterCreate bool
	// GatewayHost is the well-known hostname that reaches the host.
	GatewayHost string
	// DefaultGatewayIP is used when GatewayHost cannot be resolved.
	DefaultGatewayIP string
}

// Driver is implemented by each runtime backend. Operations returning an
// int report the runtime CLI's exit code; the error is non-nil only when
// the CLI could not be run at all.
type Driver interface {
	Name() string
	Traits() Traits
	State(ctx context.Context, name string) (State, error)
	List(ctx context.Context) ([]Instance, error)
	Create(ctx context.Context, id Identity, cfg *config.Resolved) (int, error)
	Start(ctx context.Context, name string) (int, error)
	Stop(ctx context.Context, name string) (int, error)
	Remove(ctx context.Context, name string) (int, error)
	ExecInteractive(ctx context.Context, name string, opts ExecOptions) (int, error)
	ExecNonInteractive(ctx context.Context, name string, opts ExecOptions) (int, error)
	ExecCapture(ctx context.Context, name string, opts ExecOptions) (process.Result, error)
	CopyFileIn(ctx context.Context, name, hostPath, sandboxPath string) (int, error)
	ApplyNetworkPolicy(ctx context.Context, name string, policy config.NetworkPolicy) (int, error)
	WaitReady(ctx context.Context, name string, timeout time.Duration)
}

// AgentRunner is implemented by runtimes with their own agent launcher.
type AgentRunner interface {
	RunAgent(ctx context.Context, name string, args []string) (int, error)
}

// New returns the driver for the named runtime.
func New(name string, run process.Runner, log *slog.Logger, home string) (Driver, error) {
	switch name {
	case config.RuntimeLima:
		return NewLima(run, log, home), nil
	case config.RuntimeDocker:
		return NewDocker(run, log), nil
	default:
		return nil, fmt.Errorf("unknown runtime %q", name)
	}
}

const readyPollInterval = time.Second

// waitReady polls a no-op command until it succeeds or timeout elapses.
// A timeout is logged, not returned.
func waitReady(ctx context.Context, d Driver, name string, timeout time.Duration, sleep func(time.Duration), log *slog.Logger) {
	if timeout <= 0 {
		return
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		res, err := d.ExecCapture(ctx, name, ExecOptions{Command: []string{"true"}})
		if err == nil && res.Status == 0 {
			return
		}
		sleep(readyPollInterval)
	}
	log.Warn(fmt.Sprintf("%s not ready after %s (continuing anyway)", name, timeout))
}
