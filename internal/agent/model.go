package agent

import "strings"

// ModelFlagStrategy returns argv with a --model flag for model injected.
// Implementations must not modify argv in place.
type ModelFlagStrategy func(argv []string, model string) []string

// TopLevelModel prepends "--model <model>".
func TopLevelModel(argv []string, model string) []string {
	out := make([]string, 0, len(argv)+2)
	out = append(out, "--model", model)
	return append(out, argv...)
}

// ModelAfterSubcommand inserts "--model <model>" right after the first
// occurrence of sub. When sub is absent argv is returned unchanged, since
// the flag is only valid on that subcommand.
func ModelAfterSubcommand(sub string) ModelFlagStrategy {
	return func(argv []string, model string) []string {
		for i, a := range argv {
			if a != sub {
				continue
			}
			out := make([]string, 0, len(argv)+2)
			out = append(out, argv[:i+1]...)
			out = append(out, "--model", model)
			return append(out, argv[i+1:]...)
		}
		return argv
	}
}

// WithDefaultModel applies the agent's model flag strategy unless model is empty
// or the user already passed a model flag.
func (s Spec) WithDefaultModel(argv []string, model string) []string {
	if model == "" || hasModelFlag(argv) || s.Model == nil {
		return argv
	}
	return s.Model(argv, model)
}

func hasModelFlag(argv []string) bool {
	for _, a := range argv {
		if a == "--model" || a == "-m" || strings.HasPrefix(a, "--model=") {
			return true
		}
	}
	return false
}
