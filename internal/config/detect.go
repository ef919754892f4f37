package config

import (
	"os"
	"path/filepath"
)

type Detection struct {
	Language string
	Packages []string
	Setup    []string
}

// Detect inspects the project directory and suggests the packages and
// setup commands for its onCreate bootstrap script. Setup commands run
// from the workspace root.
func Detect(projectDir string) Detection {
	checks := []struct {
		file     string
		language string
		packages []string
		setup    []string
	}{
		{"go.mod", "go", []string{"golang-go", "make"}, []string{"go mod download"}},
		{"package.json", "node", []string{"make"}, []string{"npm install"}},
		{"requirements.txt", "python", []string{"python3", "python3-pip", "python3-venv", "make"}, []string{"pip install -r requirements.txt"}},
		{"Cargo.toml", "rust", []string{"rustc", "cargo", "make"}, []string{"cargo fetch"}},
		{"pyproject.toml", "python", []string{"python3", "python3-pip", "python3-venv", "make"}, []string{"pip install -e ."}},
	}

	for _, c := range checks {
		if _, err := os.Stat(filepath.Join(projectDir, c.file)); err == nil {
			return Detection{
				Language: c.language,
				Packages: c.packages,
				Setup:    c.setup,
			}
		}
	}

	return Detection{
		Language: "unknown",
		Packages: []string{"make"},
	}
}
