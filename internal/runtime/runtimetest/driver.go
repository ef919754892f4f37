// Package runtimetest provides a recording runtime.Driver for tests.
package runtimetest

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/runtime"
)

// Operation names recorded in Driver.Calls.
const (
	OpState       = "state"
	OpList        = "list"
	OpCreate      = "create"
	OpStart       = "start"
	OpStop        = "stop"
	OpRemove      = "remove"
	OpExec        = "exec"
	OpInteractive = "exec-interactive"
	OpCapture     = "capture"
	OpCopy        = "copy"
	OpPolicy      = "policy"
	OpWait        = "wait"
	OpRunAgent    = "run-agent"
)

// Call is one recorded driver operation.
type Call struct {
	Op   string
	Name string
	Exec runtime.ExecOptions
	// Src and Dst are set for copies.
	Src, Dst string
}

// Driver records every call and answers from its fields. The zero value
// reports StateNotFound and succeeds at everything.
type Driver struct {
	DriverName  string
	TraitsValue runtime.Traits

	// States is consumed one entry per State call; the last entry repeats.
	States    []runtime.State
	StateErr  error
	Instances []runtime.Instance

	// Codes maps an operation to the exit code it returns.
	Codes map[string]int
	// ExecCode, when set, decides the exit code of non-interactive execs.
	ExecCode func(runtime.ExecOptions) int
	// CaptureFn answers ExecCapture.
	CaptureFn func(runtime.ExecOptions) process.Result
	PolicyErr error

	Calls []Call
}

func (d *Driver) record(c Call) { d.Calls = append(d.Calls, c) }

func (d *Driver) code(op string) int { return d.Codes[op] }

func (d *Driver) Name() string {
	if d.DriverName == "" {
		return "fake"
	}
	return d.DriverName
}

func (d *Driver) Traits() runtime.Traits { return d.TraitsValue }

func (d *Driver) State(_ context.Context, name string) (runtime.State, error) {
	d.record(Call{Op: OpState, Name: name})
	if d.StateErr != nil {
		return runtime.StateNotFound, d.StateErr
	}
	if len(d.States) == 0 {
		return runtime.StateNotFound, nil
	}
	s := d.States[0]
	if len(d.States) > 1 {
		d.States = d.States[1:]
	}
	return s, nil
}

func (d *Driver) List(context.Context) ([]runtime.Instance, error) {
	d.record(Call{Op: OpList})
	return d.Instances, nil
}

func (d *Driver) Create(_ context.Context, id runtime.Identity, _ *config.Resolved) (int, error) {
	d.record(Call{Op: OpCreate, Name: id.Name})
	return d.code(OpCreate), nil
}

func (d *Driver) Start(_ context.Context, name string) (int, error) {
	d.record(Call{Op: OpStart, Name: name})
	return d.code(OpStart), nil
}

func (d *Driver) Stop(_ context.Context, name string) (int, error) {
	d.record(Call{Op: OpStop, Name: name})
	return d.code(OpStop), nil
}

func (d *Driver) Remove(_ context.Context, name string) (int, error) {
	d.record(Call{Op: OpRemove, Name: name})
	return d.code(OpRemove), nil
}

func (d *Driver) ExecInteractive(_ context.Context, name string, opts runtime.ExecOptions) (int, error) {
	d.record(Call{Op: OpInteractive, Name: name, Exec: opts})
	return d.code(OpInteractive), nil
}

func (d *Driver) ExecNonInteractive(_ context.Context, name string, opts runtime.ExecOptions) (int, error) {
	d.record(Call{Op: OpExec, Name: name, Exec: opts})
	if d.ExecCode != nil {
		return d.ExecCode(opts), nil
	}
	return d.code(OpExec), nil
}

func (d *Driver) ExecCapture(_ context.Context, name string, opts runtime.ExecOptions) (process.Result, error) {
	d.record(Call{Op: OpCapture, Name: name, Exec: opts})
	if d.CaptureFn != nil {
		return d.CaptureFn(opts), nil
	}
	return process.Result{Status: d.code(OpCapture)}, nil
}

func (d *Driver) CopyFileIn(_ context.Context, name, hostPath, sandboxPath string) (int, error) {
	d.record(Call{Op: OpCopy, Name: name, Src: hostPath, Dst: sandboxPath})
	return d.code(OpCopy), nil
}

func (d *Driver) ApplyNetworkPolicy(_ context.Context, name string, _ config.NetworkPolicy) (int, error) {
	d.record(Call{Op: OpPolicy, Name: name})
	return d.code(OpPolicy), d.PolicyErr
}

func (d *Driver) WaitReady(_ context.Context, name string, _ time.Duration) {
	d.record(Call{Op: OpWait, Name: name})
}

// RunAgent makes the fake satisfy runtime.AgentRunner.
func (d *Driver) RunAgent(_ context.Context, name string, args []string) (int, error) {
	d.record(Call{Op: OpRunAgent, Name: name, Exec: runtime.ExecOptions{Command: args}})
	return d.code(OpRunAgent), nil
}

// Ops returns the recorded operation names in order.
func (d *Driver) Ops() []string {
	ops := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		ops[i] = c.Op
	}
	return ops
}

// Lifecycle returns only the state-changing operations, in order.
func (d *Driver) Lifecycle() []string {
	var ops []string
	for _, c := range d.Calls {
		switch c.Op {
		case OpCreate, OpStart, OpStop, OpRemove:
			ops = append(ops, c.Op)
		}
	}
	return ops
}

// Count reports how many times op was called.
func (d *Driver) Count(op string) int {
	n := 0
	for _, c := range d.Calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// Index returns the position of the first call to op, or -1.
func (d *Driver) Index(op string) int {
	return slices.IndexFunc(d.Calls, func(c Call) bool { return c.Op == op })
}

// Scripts returns the shell commands passed to non-interactive execs,
// joined with spaces.
func (d *Driver) Scripts() []string {
	var out []string
	for _, c := range d.Calls {
		if c.Op == OpExec {
			out = append(out, strings.Join(c.Exec.Command, " "))
		}
	}
	return out
}

var (
	_ runtime.Driver      = (*Driver)(nil)
	_ runtime.AgentRunner = (*Driver)(nil)
)
