package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sky1core/agentbox/internal/process"
)

// Host is the ambient state of the invoking machine. It is resolved once
// in main and passed down so nothing else reads the process environment.
type Host struct {
	Home   string
	Cwd    string
	GOOS   string
	Getenv func(string) string
	// SystemCerts returns PEM certificates from the OS trust store, or "".
	SystemCerts func() string
}

// CurrentHost captures the real host.
func CurrentHost() (Host, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Host{}, fmt.Errorf("resolving home directory: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return Host{}, fmt.Errorf("resolving working directory: %w", err)
	}
	return Host{
		Home:        home,
		Cwd:         cwd,
		GOOS:        runtime.GOOS,
		Getenv:      os.Getenv,
		SystemCerts: keychainCerts,
	}, nil
}

// Env looks up key, tolerating a nil Getenv.
func (h Host) Env(key string) string {
	if h.Getenv == nil {
		return ""
	}
	return h.Getenv(key)
}

// ExpandHome resolves "~/" against the host home and makes p absolute.
func (h Host) ExpandHome(p string) string {
	if p == "~" {
		return h.Home
	}
	if strings.HasPrefix(p, "~/") {
		return filepath.Join(h.Home, p[2:])
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(h.Cwd, p)
}

// keychainCerts exports the macOS System keychain. Corporate proxy CAs are
// commonly installed there.
func keychainCerts() string {
	if runtime.GOOS != "darwin" {
		return ""
	}
	res, err := process.New().Capture(context.Background(),
		"security", "find-certificate", "-a", "-p", "/Library/Keychains/System.keychain")
	if err != nil || res.Status != 0 {
		return ""
	}
	return res.Stdout
}
