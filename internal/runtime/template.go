package runtime

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sky1core/agentbox/internal/config"
)

//go:embed lima/*.sh
var limaScripts embed.FS

const (
	ubuntuArm64 = "https://cloud-images.ubuntu.com/releases/24.04/release/ubuntu-24.04-server-cloudimg-arm64.img"
	ubuntuAmd64 = "https://cloud-images.ubuntu.com/releases/24.04/release/ubuntu-24.04-server-cloudimg-amd64.img"

	caBundle = "/etc/ssl/certs/ca-certificates.crt"
)

type limaTemplate struct {
	VMType    string          `yaml:"vmType"`
	Arch      string          `yaml:"arch"`
	CPUs      int             `yaml:"cpus"`
	Memory    string          `yaml:"memory"`
	Disk      string          `yaml:"disk"`
	Images    []limaImage     `yaml:"images"`
	VMOpts    limaVMOpts      `yaml:"vmOpts"`
	CACerts   *limaCACerts    `yaml:"caCerts,omitempty"`
	Mounts    []limaMount     `yaml:"mounts"`
	Provision []limaProvision `yaml:"provision"`
}

type limaImage struct {
	Location string `yaml:"location"`
	Arch     string `yaml:"arch"`
}

type limaVMOpts struct {
	VZ struct {
		Rosetta struct {
			Enabled bool `yaml:"enabled"`
			Binfmt  bool `yaml:"binfmt"`
		} `yaml:"rosetta"`
	} `yaml:"vz"`
}

type limaCACerts struct {
	Certs []string `yaml:"certs"`
}

type limaMount struct {
	Location   string `yaml:"location"`
	MountPoint string `yaml:"mountPoint,omitempty"`
	Writable   bool   `yaml:"writable"`
}

type limaProvision struct {
	Mode   string `yaml:"mode"`
	Script string `yaml:"script"`
}

// BuildTemplate renders the Lima instance template for cfg. Only the
// workspace and configured mounts are shared; the host home directory is
// never mounted, credentials are copied in by name instead.
func BuildTemplate(cfg *config.Resolved) ([]byte, error) {
	t := limaTemplate{
		VMType: "vz",
		Arch:   "default",
		CPUs:   cfg.VM.CPUs,
		Memory: cfg.VM.Memory,
		Disk:   cfg.VM.Disk,
		Images: []limaImage{
			{Location: ubuntuArm64, Arch: "aarch64"},
			{Location: ubuntuAmd64, Arch: "x86_64"},
		},
	}
	t.VMOpts.VZ.Rosetta.Enabled = true
	t.VMOpts.VZ.Rosetta.Binfmt = true

	hasCerts := strings.TrimSpace(cfg.CACerts) != ""
	if hasCerts {
		t.CACerts = &limaCACerts{Certs: splitCerts(cfg.CACerts)}
	}

	t.Mounts = append(t.Mounts, limaMount{Location: cfg.Workspace, MountPoint: cfg.Workspace, Writable: true})
	for _, m := range cfg.Mounts {
		t.Mounts = append(t.Mounts, limaMount{Location: m.Location, MountPoint: m.MountPoint, Writable: m.Writable})
	}

	phases := []struct {
		file  string
		mode  string
		caEnv []string
	}{
		{"system.sh", "system", []string{
			"export NODE_EXTRA_CA_CERTS=" + caBundle,
			"echo 'export NODE_EXTRA_CA_CERTS=" + caBundle + "' > /etc/profile.d/node-ca-certs.sh",
		}},
		{"tooling.sh", "system", []string{"export NODE_EXTRA_CA_CERTS=" + caBundle}},
		{"agents.sh", "system", []string{"export NODE_EXTRA_CA_CERTS=" + caBundle}},
		{"user.sh", "user", nil},
	}
	for _, p := range phases {
		script, err := limaScripts.ReadFile("lima/" + p.file)
		if err != nil {
			return nil, fmt.Errorf("reading provision script %s: %w", p.file, err)
		}
		s := string(script)
		if hasCerts && len(p.caEnv) > 0 {
			s = insertAfterPreamble(s, p.caEnv)
		}
		t.Provision = append(t.Provision, limaProvision{Mode: p.mode, Script: s})
	}

	data, err := yaml.Marshal(&t)
	if err != nil {
		return nil, fmt.Errorf("marshaling lima template: %w", err)
	}
	return data, nil
}

// splitCerts returns each PEM block of bundle as its own string.
func splitCerts(bundle string) []string {
	const begin = "-----BEGIN CERTIFICATE-----"
	var certs []string
	for _, part := range strings.Split(bundle, begin) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		certs = append(certs, begin+"\n"+part+"\n")
	}
	return certs
}

// insertAfterPreamble places lines after the shebang and `set` line.
func insertAfterPreamble(script string, lines []string) string {
	all := strings.SplitN(script, "\n", 3)
	if len(all) < 3 {
		return script + strings.Join(lines, "\n") + "\n"
	}
	return all[0] + "\n" + all[1] + "\n" + strings.Join(lines, "\n") + "\n" + all[2]
}
