package project

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

var (
	// ErrAnalyzeSectionMissing indicates that [analyze] is missing.
	ErrAnalyzeSectionMissing = errors.New("missing [analyze]")
	// ErrBadFormat indicates an unknown [analyze].format value.
	ErrBadFormat = errors.New("invalid [analyze].format")
)

// Manifest holds the defaults a cabi.toml supplies to `cabi analyze`.
type Manifest struct {
	Path    string
	Root    string
	Analyze AnalyzeConfig
}

type AnalyzeConfig struct {
	Targets          []string `toml:"targets"`
	Format           string   `toml:"format"`
	Jobs             int      `toml:"jobs"`
	MaxArgStackBytes int64    `toml:"max_arg_stack_bytes"`
	Descriptions     []string `toml:"descriptions"`
}

type manifestFile struct {
	Analyze AnalyzeConfig `toml:"analyze"`
}

var formats = map[string]bool{"": true, "pretty": true, "json": true, "msgpack": true}

// LoadManifest parses a cabi.toml.
func LoadManifest(path string) (Manifest, error) {
	var cfg manifestFile
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Manifest{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if !meta.IsDefined("analyze") {
		return Manifest{}, fmt.Errorf("%s: %w", path, ErrAnalyzeSectionMissing)
	}
	a := cfg.Analyze
	a.Format = strings.ToLower(strings.TrimSpace(a.Format))
	if !formats[a.Format] {
		return Manifest{}, fmt.Errorf("%s: %w: %q", path, ErrBadFormat, a.Format)
	}
	if meta.IsDefined("analyze", "jobs") && a.Jobs < 0 {
		return Manifest{}, fmt.Errorf("%s: [analyze].jobs must not be negative", path)
	}
	if a.MaxArgStackBytes < 0 {
		return Manifest{}, fmt.Errorf("%s: [analyze].max_arg_stack_bytes must not be negative", path)
	}
	return Manifest{Path: path, Root: filepath.Dir(path), Analyze: a}, nil
}

// Load finds and parses the manifest above startDir. ok is false when
// there is none.
func Load(startDir string) (Manifest, bool, error) {
	path, ok, err := FindManifest(startDir)
	if err != nil || !ok {
		return Manifest{}, ok, err
	}
	m, err := LoadManifest(path)
	if err != nil {
		return Manifest{}, true, err
	}
	return m, true, nil
}
