package shell

import (
	"os/exec"
	"testing"
)

func TestQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "'plain'"},
		{"", "''"},
		{"it's", `'it'\''s'`},
		{"$HOME `x`", "'$HOME `x`'"},
	}
	for _, tt := range tests {
		if got := Quote(tt.in); got != tt.want {
			t.Errorf("Quote(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestEscapeDouble(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"bar", "bar"},
		{`say "hi"`, `say \"hi\"`},
		{"$VAR", `\$VAR`},
		{"`cmd`", "\\`cmd\\`"},
		{`path\to`, `path\\to`},
		{"it's", "it's"},
	}
	for _, tt := range tests {
		if got := EscapeDouble(tt.in); got != tt.want {
			t.Errorf("EscapeDouble(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestQuotingRoundTripsThroughSh(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	value := "it's a \"test\" $VAR `cmd` path\\to"

	out, err := exec.Command("sh", "-c", "printf '%s' "+Quote(value)).Output()
	if err != nil {
		t.Fatalf("single-quoted: %v", err)
	}
	if string(out) != value {
		t.Errorf("single-quoted round trip = %q, want %q", out, value)
	}

	out, err = exec.Command("sh", "-c", `printf '%s' "`+EscapeDouble(value)+`"`).Output()
	if err != nil {
		t.Fatalf("double-quoted: %v", err)
	}
	if string(out) != value {
		t.Errorf("double-quoted round trip = %q, want %q", out, value)
	}
}

func TestHomePath(t *testing.T) {
	if got := HomePath("~/.git-hooks/pre-push"); got != "$HOME/.git-hooks/pre-push" {
		t.Errorf("HomePath = %q", got)
	}
	if got := HomePath("/etc/hosts"); got != "/etc/hosts" {
		t.Errorf("HomePath = %q", got)
	}
}
