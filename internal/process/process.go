// Package process runs host commands either attached to the caller's
// terminal or with their output captured.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// ExitNotStarted is the status reported when a command could not be
// spawned at all (binary missing, permission denied).
const ExitNotStarted = 127

// Result holds the captured output of a finished command.
type Result struct {
	Stdout string
	Stderr string
	Status int
}

// Runner spawns host processes. Production code uses OS; tests substitute
// a recorder.
type Runner interface {
	// Inherit runs the command with the runner's stdio and returns its exit code.
	Inherit(ctx context.Context, name string, args ...string) (int, error)
	// Capture runs the command and collects stdout and stderr.
	Capture(ctx context.Context, name string, args ...string) (Result, error)
	// Feed runs the command with stdin read from r and stdout/stderr
	// inherited, returning its exit code.
	Feed(ctx context.Context, r io.Reader, name string, args ...string) (int, error)
	// Detach starts the command in the background with stdio discarded and
	// does not wait for it.
	Detach(name string, args ...string) error
}

// OS runs commands on the host.
type OS struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// New returns an OS runner wired to the current process's stdio.
func New() *OS {
	return &OS{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

func (r *OS) Inherit(ctx context.Context, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return exitStatus(cmd.Run())
}

func (r *OS) Capture(ctx context.Context, name string, args ...string) (Result, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	status, err := exitStatus(cmd.Run())
	return Result{Stdout: stdout.String(), Stderr: stderr.String(), Status: status}, err
}

func (r *OS) Feed(ctx context.Context, stdin io.Reader, name string, args ...string) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return exitStatus(cmd.Run())
}

func (r *OS) Detach(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	// Reap in the background so the child does not linger as a zombie.
	go cmd.Wait()
	return nil
}

// exitStatus maps an exec error to an exit code. A non-zero exit is not an
// error; only failing to run the command at all is.
func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return ExitNotStarted, err
}
