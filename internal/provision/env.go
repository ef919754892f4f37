package provision

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/sky1core/agentbox/internal/config"
	"github.com/sky1core/agentbox/internal/runtime"
	"github.com/sky1core/agentbox/internal/shell"
)

// EnvFileContent renders env as sourced `export KEY="value"` lines in key
// order. Keys that are not shell identifiers are dropped.
func EnvFileContent(env map[string]string) string {
	var b strings.Builder
	for _, k := range slices.Sorted(maps.Keys(env)) {
		if !config.ValidEnvKey(k) {
			continue
		}
		b.WriteString("export " + k + `="` + shell.EscapeDouble(env[k]) + "\"\n")
	}
	return b.String()
}

// EnvInjector keeps the sandbox's persistent env file in sync with config.
type EnvInjector struct {
	driver runtime.Driver
	log    *slog.Logger
}

func NewEnvInjector(d runtime.Driver, log *slog.Logger) *EnvInjector {
	return &EnvInjector{driver: d, log: log}
}

// Inject rewrites the env file. With nothing to write the file is removed
// so keys dropped from config do not linger from an earlier run.
func (e *EnvInjector) Inject(ctx context.Context, name, workspace string, env map[string]string) error {
	content := EnvFileContent(env)
	if content == "" {
		return mustSh(ctx, e.driver, name, workspace, "clearing env file",
			"sudo rm -f "+runtime.EnvFile)
	}

	e.log.Info("injecting environment variables")
	script := shell.AndThen(
		"printf '%s' "+shell.Quote(content)+" | sudo tee "+runtime.EnvFile+" > /dev/null",
		"sudo chmod 644 "+runtime.EnvFile,
	)
	return mustSh(ctx, e.driver, name, workspace, "writing env file", script)
}
