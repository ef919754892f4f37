package runtime

import (
	"context"
	"io"
	"strings"

	"github.com/sky1core/agentbox/internal/process"
)

// recorder is a process.Runner that records invocations and replies from
// canned results keyed by the joined command line prefix.
type recorder struct {
	calls    [][]string
	detached [][]string
	fed      []string
	results  map[string]process.Result
	// captureFn, when set, answers Capture calls instead of results.
	captureFn func(argv []string) process.Result
}

func newRecorder() *recorder {
	return &recorder{results: make(map[string]process.Result)}
}

func (r *recorder) record(name string, args []string) []string {
	argv := append([]string{name}, args...)
	r.calls = append(r.calls, argv)
	return argv
}

func (r *recorder) lookup(argv []string) process.Result {
	line := strings.Join(argv, " ")
	for prefix, res := range r.results {
		if strings.HasPrefix(line, prefix) {
			return res
		}
	}
	return process.Result{}
}

func (r *recorder) Inherit(_ context.Context, name string, args ...string) (int, error) {
	return r.lookup(r.record(name, args)).Status, nil
}

func (r *recorder) Capture(_ context.Context, name string, args ...string) (process.Result, error) {
	argv := r.record(name, args)
	if r.captureFn != nil {
		return r.captureFn(argv), nil
	}
	return r.lookup(argv), nil
}

func (r *recorder) Feed(_ context.Context, in io.Reader, name string, args ...string) (int, error) {
	data, _ := io.ReadAll(in)
	r.fed = append(r.fed, string(data))
	return r.lookup(r.record(name, args)).Status, nil
}

func (r *recorder) Detach(name string, args ...string) error {
	r.detached = append(r.detached, append([]string{name}, args...))
	return nil
}

func (r *recorder) last() []string {
	if len(r.calls) == 0 {
		return nil
	}
	return r.calls[len(r.calls)-1]
}
