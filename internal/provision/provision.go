// Package provision configures a running sandbox: credentials, the
// persistent environment, network policy, bootstrap scripts and the
// read-only-remote guard. Every step is safe to repeat on each start.
package provision

import (
	"context"
	"fmt"

	"github.com/sky1core/agentbox/internal/runtime"
)

// sh runs script with `sh -c` inside the sandbox and returns its exit code.
func sh(ctx context.Context, d runtime.Driver, name, workdir, script string) (int, error) {
	return d.ExecNonInteractive(ctx, name, runtime.ExecOptions{
		Command: []string{"sh", "-c", script},
		WorkDir: workdir,
	})
}

// mustSh is sh with a nonzero exit turned into an error.
func mustSh(ctx context.Context, d runtime.Driver, name, workdir, what, script string) error {
	code, err := sh(ctx, d, name, workdir, script)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if code != 0 {
		return fmt.Errorf("%s: exit %d", what, code)
	}
	return nil
}
