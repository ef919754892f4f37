package provision

import (
	"context"
	"io"
	"os/exec"
	"testing"

	"github.com/sky1core/agentbox/internal/process"
	"github.com/sky1core/agentbox/internal/runtime/runtimetest"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// hostRunner answers host commands from a fixed result.
type hostRunner struct {
	result process.Result
	calls  [][]string
}

func (h *hostRunner) Inherit(_ context.Context, name string, args ...string) (int, error) {
	h.calls = append(h.calls, append([]string{name}, args...))
	return h.result.Status, nil
}

func (h *hostRunner) Capture(_ context.Context, name string, args ...string) (process.Result, error) {
	h.calls = append(h.calls, append([]string{name}, args...))
	return h.result, nil
}

func (h *hostRunner) Feed(_ context.Context, _ io.Reader, name string, args ...string) (int, error) {
	h.calls = append(h.calls, append([]string{name}, args...))
	return h.result.Status, nil
}

func (h *hostRunner) Detach(name string, args ...string) error {
	h.calls = append(h.calls, append([]string{name}, args...))
	return nil
}

// shScript returns the script of the i-th non-interactive exec, which
// must be an `sh -c` call.
func shScript(t *testing.T, d *runtimetest.Driver, i int) string {
	t.Helper()
	var n int
	for _, c := range d.Calls {
		if c.Op != runtimetest.OpExec {
			continue
		}
		if n == i {
			if len(c.Exec.Command) != 3 || c.Exec.Command[0] != "sh" || c.Exec.Command[1] != "-c" {
				t.Fatalf("exec %d is not sh -c: %v", i, c.Exec.Command)
			}
			return c.Exec.Command[2]
		}
		n++
	}
	t.Fatalf("no exec %d in %v", i, d.Ops())
	return ""
}
