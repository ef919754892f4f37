// Package shell builds POSIX sh text that runs inside a sandbox. All
// escaping lives here so each target context has exactly one quoting rule.
package shell

import "strings"

// Quote returns s as a single-quoted sh literal. Nothing inside is
// expanded by the shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Join quotes every argument and joins them with spaces.
func Join(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = Quote(a)
	}
	return strings.Join(quoted, " ")
}

var doubleQuoteEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"`", "\\`",
)

// EscapeDouble escapes s for use between double quotes so that the shell
// reproduces it verbatim: backslash, double quote, dollar sign and
// backtick are escaped.
func EscapeDouble(s string) string {
	return doubleQuoteEscaper.Replace(s)
}

// HomePath rewrites a leading "~/" to "$HOME/" so the path expands inside
// double quotes on the remote side.
func HomePath(p string) string {
	if strings.HasPrefix(p, "~/") {
		return "$HOME/" + p[2:]
	}
	return p
}

// AndThen chains commands so the first failure stops the chain.
func AndThen(cmds ...string) string {
	return strings.Join(cmds, " && ")
}
