package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func write(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFullManifest(t *testing.T) {
	path := write(t, `
[analysis]
max-steps = 1000
max-nodes = 500
jobs = 4

[taint]
sources = ["p.input"]
sinks = ["p.exec"]

[checks]
taintflow = true
nilderef = false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Analysis.MaxSteps != 1000 || cfg.Analysis.Jobs != 4 {
		t.Fatalf("analysis section mis-decoded: %+v", cfg.Analysis)
	}
	if len(cfg.Taint.Sources) != 1 || cfg.Taint.Sources[0] != "p.input" {
		t.Fatalf("taint sources mis-decoded: %v", cfg.Taint.Sources)
	}
	if cfg.Checks.NilDeref {
		t.Fatalf("explicit nilderef = false must stick")
	}
}

func TestLoadKeepsDefaultsForOmittedSections(t *testing.T) {
	path := write(t, `
[analysis]
jobs = 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Checks.Taintflow || !cfg.Checks.NilDeref {
		t.Fatalf("omitted [checks] must keep both checkers on")
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := write(t, `
[analysis]
max-stepz = 9
`)

	if _, err := Load(path); err == nil {
		t.Fatalf("typoed key must be rejected")
	}
}

func TestResolveFallsBackToDefaults(t *testing.T) {
	cfg, err := Resolve(t.TempDir(), "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !cfg.Checks.Taintflow || !cfg.Checks.NilDeref {
		t.Fatalf("missing manifest must resolve to defaults")
	}
}

func TestLoadMissingFileIsNotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
