package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeYAML(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "cwme.yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write cwme.yaml: %v", err)
	}
}

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	l := New(dir)

	cfg, err := l.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signal.HungerThreshold != 0.3 {
		t.Fatalf("expected default hunger threshold 0.3, got %v", cfg.Signal.HungerThreshold)
	}
	if cfg.Diversity.TauMMR != 0.6 {
		t.Fatalf("expected default tau_mmr 0.6, got %v", cfg.Diversity.TauMMR)
	}
	if cfg.Consolidate.MinCluster != 3 {
		t.Fatalf("expected default min_cluster 3, got %v", cfg.Consolidate.MinCluster)
	}
	if cfg.Anthropic.Model == "" {
		t.Fatal("expected a default anthropic model")
	}
	if cfg.Signal.DriveSeeds == nil || cfg.Signal.VerbRelations == nil {
		t.Fatal("expected non-nil empty tables when the yaml omits them")
	}
}

func TestLoad_ReadsYAMLTables(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, `
signal:
  hunger_threshold: 0.25
  drive_seeds:
    connection:
      - Egor
      - Telegram
  verb_relations:
    criticized: criticized
    praised: praised
consolidate:
  min_overlap: 5
  max_consecutive_failures: 2
`)

	cfg, err := New(dir).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Signal.HungerThreshold != 0.25 {
		t.Fatalf("expected 0.25, got %v", cfg.Signal.HungerThreshold)
	}
	if len(cfg.Signal.DriveSeeds["connection"]) != 2 {
		t.Fatalf("expected 2 seed nodes for connection, got %v", cfg.Signal.DriveSeeds["connection"])
	}
	if cfg.Signal.VerbRelations["criticized"] != "criticized" {
		t.Fatalf("expected verb relation table to load, got %v", cfg.Signal.VerbRelations)
	}
	if cfg.Consolidate.MinOverlap != 5 {
		t.Fatalf("expected min_overlap 5, got %v", cfg.Consolidate.MinOverlap)
	}
	if cfg.Consolidate.MaxConsecutiveFailures != 2 {
		t.Fatalf("expected max_consecutive_failures 2, got %v", cfg.Consolidate.MaxConsecutiveFailures)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "anthropic:\n  api_key: from-file\n")

	t.Setenv("CWME_ANTHROPIC_API_KEY", "from-env")

	cfg, err := New(dir).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Anthropic.APIKey != "from-env" {
		t.Fatalf("expected env override to win, got %q", cfg.Anthropic.APIKey)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	writeYAML(t, dir, "signal:\n  hunger_threshold: 0.3\n")

	l := New(dir)
	if _, err := l.Load(); err != nil {
		t.Fatalf("initial load: %v", err)
	}

	changed := make(chan *Config, 1)
	l.Watch(func(c *Config) { changed <- c })

	writeYAML(t, dir, "signal:\n  hunger_threshold: 0.9\n")

	// fsnotify delivery timing varies by filesystem; tolerate a miss rather
	// than flake, but verify the value when the event does arrive.
	select {
	case c := <-changed:
		if c.Signal.HungerThreshold != 0.9 {
			t.Fatalf("expected reloaded threshold 0.9, got %v", c.Signal.HungerThreshold)
		}
	case <-time.After(2 * time.Second):
		t.Skip("fsnotify change event did not arrive within timeout")
	}
}
