// Package config loads strata.toml, the per-project analysis manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultFileName is looked up in the analyzed directory when no
// explicit config path is given.
const DefaultFileName = "strata.toml"

// ErrNotFound indicates that no manifest exists at the resolved path.
var ErrNotFound = errors.New("config: manifest not found")

// Analysis bounds one run.
type Analysis struct {
	MaxSteps int `toml:"max-steps"`
	MaxNodes int `toml:"max-nodes"`
	Jobs     int `toml:"jobs"`
}

// Taint names the callees treated as taint sources and sinks.
type Taint struct {
	Sources []string `toml:"sources"`
	Sinks   []string `toml:"sinks"`
}

// Checks toggles individual checkers.
type Checks struct {
	Taintflow bool `toml:"taintflow"`
	NilDeref  bool `toml:"nilderef"`
}

// Config is the decoded manifest.
type Config struct {
	Analysis Analysis `toml:"analysis"`
	Taint    Taint    `toml:"taint"`
	Checks   Checks   `toml:"checks"`
}

// Default returns the configuration used when no manifest exists: both
// checkers on, budgets left to the engine's defaults.
func Default() Config {
	return Config{
		Checks: Checks{Taintflow: true, NilDeref: true},
	}
}

// Load decodes the manifest at path. Sections left out keep their
// defaults; unknown keys are an error so typos surface early.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
	}
	return cfg, nil
}

// Resolve loads the manifest for dir: an explicit path wins, otherwise
// dir/strata.toml when present, otherwise the defaults.
func Resolve(dir, explicit string) (Config, error) {
	if explicit != "" {
		return Load(explicit)
	}
	path := filepath.Join(dir, DefaultFileName)
	cfg, err := Load(path)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return cfg, err
}
