package config

import (
	"encoding/pem"
	"os"
	"strings"
)

// CollectCACerts gathers CA certificates that must be trusted inside the
// sandbox, in order: the configured PEM file, NODE_EXTRA_CA_CERTS, and the
// host trust store. Duplicates are dropped. Unreadable sources are skipped.
func CollectCACerts(h Host, configPath string) string {
	var blocks []string
	seen := make(map[string]bool)
	add := func(data string) {
		for _, b := range parsePEMCertificates(data) {
			if !seen[b] {
				seen[b] = true
				blocks = append(blocks, b)
			}
		}
	}

	if configPath != "" {
		if data, err := os.ReadFile(h.ExpandHome(configPath)); err == nil {
			add(string(data))
		}
	}
	if extra := h.Env("NODE_EXTRA_CA_CERTS"); extra != "" {
		if data, err := os.ReadFile(extra); err == nil {
			add(string(data))
		}
	}
	if h.SystemCerts != nil {
		add(h.SystemCerts())
	}

	if len(blocks) == 0 {
		return ""
	}
	return strings.Join(blocks, "")
}

// parsePEMCertificates returns each CERTIFICATE block re-encoded in
// canonical form so textual differences (CRLF, indentation) do not defeat
// deduplication.
func parsePEMCertificates(data string) []string {
	rest := []byte(normalizePEM(data))
	var out []string
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return out
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		out = append(out, string(pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: block.Bytes})))
	}
}

func normalizePEM(data string) string {
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.Join(lines, "\n")
}
