// Package sandbox brings a sandbox to a running, fully configured state
// and keeps an informational registry of the sandboxes it has touched.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/provision"
	"github.com/sky1core/agentbox/internal/runtime"
)

// connectivityRetryDelay is how long to wait before re-pinning the gateway
// after a failed connectivity probe.
const connectivityRetryDelay = 3 * time.Second

// Network applies egress policy and checks that the sandbox can reach out.
type Network interface {
	ApplyPolicy(ctx context.Context, name string, policy config.NetworkPolicy) error
	PinGatewayHost(ctx context.Context, name, workspace string) error
	VerifyConnectivity(ctx context.Context, name, workspace string) bool
}

type CredentialInjector interface {
	Inject(ctx context.Context, name string, cfg *config.Resolved) error
}

type EnvInjector interface {
	Inject(ctx context.Context, name, workspace string, env map[string]string) error
}

type Bootstrapper interface {
	Run(ctx context.Context, phase provision.Phase, name, workspace string, scripts []string, env map[string]string) error
}

type Guard interface {
	Install(ctx context.Context, name, workspace string) error
}

// Manager handles sandbox lifecycle on one runtime and the shared registry.
type Manager struct {
	mu     sync.Mutex
	driver runtime.Driver
	home   string
	log    *slog.Logger

	network   Network
	creds     CredentialInjector
	env       EnvInjector
	bootstrap Bootstrapper
	guard     Guard

	sleep func(time.Duration)
	now   func() time.Time
}

// NewManager wires the provisioning steps to driver. hostRun runs commands
// on the host itself, such as reading the gh token.
func NewManager(driver runtime.Driver, h config.Host, hostRun process.Runner, log *slog.Logger) *Manager {
	return &Manager{
		driver:    driver,
		home:      h.Home,
		log:       log,
		network:   provision.NewNetwork(driver, log),
		creds:     provision.NewCredentialInjector(driver, h, hostRun, log),
		env:       provision.NewEnvInjector(driver, log),
		bootstrap: provision.NewBootstrapper(driver, h, log),
		guard:     provision.NewGuard(driver, log),
		sleep:     time.Sleep,
		now:       time.Now,
	}
}

// Driver returns the runtime the manager operates on.
func (m *Manager) Driver() runtime.Driver { return m.driver }

// EnsureRunning converges the sandbox named by cfg to running and then
// reapplies every provisioning step. It is safe to call on every agent
// invocation.
func (m *Manager) EnsureRunning(ctx context.Context, cfg *config.Resolved) error {
	name := cfg.Agent.SandboxName
	state, err := m.driver.State(ctx, name)
	if err != nil {
		return fmt.Errorf("reading state of %s: %w", name, err)
	}
	m.log.Debug("sandbox state", "name", name, "state", state.String(), "runtime", m.driver.Name())

	created := false
	switch state {
	case runtime.StateBroken:
		m.log.Warn(fmt.Sprintf("%s is broken, recreating", name))
		code, err := m.driver.Remove(ctx, name)
		if err := lifecycle("remove", name, code, err); err != nil {
			return err
		}
		fallthrough
	case runtime.StateNotFound:
		if err := m.create(ctx, cfg); err != nil {
			return err
		}
		created = true
	case runtime.StateStopped:
		m.log.Info(fmt.Sprintf("starting %s", name))
		code, err := m.driver.Start(ctx, name)
		if err := lifecycle("start", name, code, err); err != nil {
			return err
		}
		m.driver.WaitReady(ctx, name, startupWait(cfg))
	}

	if err := m.provision(ctx, cfg, created); err != nil {
		return err
	}
	m.verifyNetwork(ctx, cfg)
	m.record(cfg, created)
	return nil
}

func (m *Manager) create(ctx context.Context, cfg *config.Resolved) error {
	name := cfg.Agent.SandboxName
	id := runtime.Identity{Name: name, Workspace: cfg.Workspace, Agent: cfg.Agent.Spec.Kind}

	m.log.Info(fmt.Sprintf("creating %s (%s)", name, m.driver.Name()))
	code, err := m.driver.Create(ctx, id, cfg)
	if err := lifecycle("create", name, code, err); err != nil {
		return err
	}

	code, err = m.driver.Start(ctx, name)
	if err := lifecycle("start", name, code, err); err != nil {
		return err
	}
	if m.driver.Traits().RestartAfterCreate {
		m.log.Info(fmt.Sprintf("restarting %s to apply provisioning", name))
		code, err = m.driver.Stop(ctx, name)
		if err := lifecycle("stop", name, code, err); err != nil {
			return err
		}
		code, err = m.driver.Start(ctx, name)
		if err := lifecycle("start", name, code, err); err != nil {
			return err
		}
	}
	m.driver.WaitReady(ctx, name, startupWait(cfg))
	return nil
}

// provision runs the configuration steps in their fixed order. Only a
// bootstrap failure aborts; everything else is reported and skipped.
func (m *Manager) provision(ctx context.Context, cfg *config.Resolved, created bool) error {
	name, ws := cfg.Agent.SandboxName, cfg.Workspace

	if err := m.network.ApplyPolicy(ctx, name, cfg.Network); err != nil {
		m.log.Warn("network policy not applied", "err", err)
	}
	if err := m.network.PinGatewayHost(ctx, name, ws); err != nil {
		m.log.Warn("gateway host not pinned", "err", err)
	}
	if err := m.creds.Inject(ctx, name, cfg); err != nil {
		m.log.Warn("credential injection incomplete", "err", err)
	}
	if err := m.env.Inject(ctx, name, ws, cfg.Env); err != nil {
		m.log.Warn("env injection failed", "err", err)
	}

	if created {
		if err := m.bootstrap.Run(ctx, provision.OnCreate, name, ws, cfg.Bootstrap.OnCreate, cfg.Env); err != nil {
			return err
		}
	}
	if err := m.bootstrap.Run(ctx, provision.OnStart, name, ws, cfg.Bootstrap.OnStart, cfg.Env); err != nil {
		return err
	}

	if !cfg.RemoteWrite {
		if err := m.guard.Install(ctx, name, ws); err != nil {
			m.log.Warn("read-only remote guard incomplete", "err", err)
		}
	}
	return nil
}

func (m *Manager) verifyNetwork(ctx context.Context, cfg *config.Resolved) {
	name, ws := cfg.Agent.SandboxName, cfg.Workspace
	if m.network.VerifyConnectivity(ctx, name, ws) {
		return
	}

	m.log.Info(fmt.Sprintf("network check failed, retrying in %s", connectivityRetryDelay))
	m.sleep(connectivityRetryDelay)
	if err := m.network.PinGatewayHost(ctx, name, ws); err != nil {
		m.log.Warn("gateway host not pinned", "err", err)
	}
	if m.network.VerifyConnectivity(ctx, name, ws) {
		return
	}

	m.log.Warn(fmt.Sprintf("%s cannot reach %s", name, provision.ProbeURL))
	m.log.Warn(fmt.Sprintf("  try: agentbox %s stop", cfg.Agent.Spec.Kind))
	m.log.Warn("  then re-run agentbox")
}

func (m *Manager) record(cfg *config.Resolved, created bool) {
	now := m.now()
	err := m.update(func(s *State) {
		e, ok := s.Sandboxes[cfg.Agent.SandboxName]
		if !ok || created || e.Runtime != m.driver.Name() {
			e = &Entry{Name: cfg.Agent.SandboxName, CreatedAt: now}
			s.Sandboxes[e.Name] = e
		}
		e.Agent = cfg.Agent.Spec.Kind
		e.Runtime = m.driver.Name()
		e.Workspace = cfg.Workspace
		e.LastEnsuredAt = now
	})
	if err != nil {
		m.log.Warn("failed to save sandbox registry", "err", err)
	}
}

// Stop stops the sandbox. The registry entry is kept.
func (m *Manager) Stop(ctx context.Context, name string) error {
	code, err := m.driver.Stop(ctx, name)
	return lifecycle("stop", name, code, err)
}

// Remove deletes the sandbox and forgets it.
func (m *Manager) Remove(ctx context.Context, name string) error {
	code, err := m.driver.Remove(ctx, name)
	if err := lifecycle("remove", name, code, err); err != nil {
		return err
	}
	if err := m.update(func(s *State) { delete(s.Sandboxes, name) }); err != nil {
		m.log.Warn("failed to save sandbox registry", "err", err)
	}
	return nil
}

// Shell opens an interactive login shell in the sandbox.
func (m *Manager) Shell(ctx context.Context, name, workspace string, env map[string]string) (int, error) {
	return m.driver.ExecInteractive(ctx, name, runtime.ExecOptions{
		Command: []string{"bash", "-l"},
		Env:     env,
		WorkDir: workspace,
	})
}

// List returns the registry entries on this manager's runtime, oldest first.
func (m *Manager) List() ([]*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := loadState(m.home)
	if err != nil {
		return nil, err
	}
	result := make([]*Entry, 0, len(s.Sandboxes))
	for _, e := range s.Sandboxes {
		if e.Runtime == m.driver.Name() {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].Name < result[j].Name
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Statuses asks the runtime for the live state of every instance it knows.
// Names missing from the result are not found.
func (m *Manager) Statuses(ctx context.Context) (map[string]runtime.State, error) {
	instances, err := m.driver.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing %s sandboxes: %w", m.driver.Name(), err)
	}
	out := make(map[string]runtime.State, len(instances))
	for _, in := range instances {
		out[in.Name] = in.State
	}
	return out, nil
}

// update applies fn to a freshly loaded registry and saves it, so that
// managers for different runtimes never overwrite each other's entries.
func (m *Manager) update(fn func(*State)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := loadState(m.home)
	if err != nil {
		m.log.Warn("discarding unreadable sandbox registry", "err", err)
		s = newState()
	}
	fn(s)
	return saveState(m.home, s)
}

func startupWait(cfg *config.Resolved) time.Duration {
	return time.Duration(cfg.StartupWaitSec) * time.Second
}
