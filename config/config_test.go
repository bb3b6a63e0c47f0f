package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concierge.yaml")
	content := `
name: trainer
log_level: debug
turn:
  timeout: 45s
  decision_timeout: 20s
  max_steps: 6
  retries: 2
graph:
  redis_url: redis://localhost:6379
  create_missing: true
registry:
  endpoints: ["localhost:2379"]
  lease_ttl: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Name != "trainer" {
		t.Errorf("unexpected name: %q", cfg.Name)
	}
	if cfg.GetLogLevel() != "debug" {
		t.Errorf("unexpected log level: %q", cfg.GetLogLevel())
	}
	if got := cfg.Turn.GetTimeout(); got != 45*time.Second {
		t.Errorf("unexpected timeout: %v", got)
	}
	if got := cfg.Turn.GetDecisionTimeout(); got != 20*time.Second {
		t.Errorf("unexpected decision timeout: %v", got)
	}
	if got := cfg.Turn.GetResolutionTimeout(); got != 10*time.Second {
		t.Errorf("expected default resolution timeout, got %v", got)
	}
	if got := cfg.Turn.GetMaxSteps(); got != 6 {
		t.Errorf("unexpected max steps: %d", got)
	}
	if got := cfg.Turn.GetRetries(); got != 2 {
		t.Errorf("unexpected retries: %d", got)
	}
	if !cfg.Graph.CreateMissing {
		t.Error("create_missing not parsed")
	}
	if got := cfg.Registry.GetLeaseTTL(); got != time.Minute {
		t.Errorf("unexpected lease ttl: %v", got)
	}
}

func TestLoadFromDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concierge.yml")
	if err := os.WriteFile(path, []byte("name: trainer\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Name != "trainer" {
		t.Errorf("unexpected name: %q", cfg.Name)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if got := cfg.Turn.GetTimeout(); got != 30*time.Second {
		t.Errorf("unexpected default timeout: %v", got)
	}
	if got := cfg.Turn.GetDecisionTimeout(); got != 15*time.Second {
		t.Errorf("unexpected default decision timeout: %v", got)
	}
	if got := cfg.Turn.GetRetries(); got != 1 {
		t.Errorf("unexpected default retries: %d", got)
	}
	if got := cfg.Turn.GetWindow(); got != 20 {
		t.Errorf("unexpected default window: %d", got)
	}
	if got := cfg.Registry.GetLeaseTTL(); got != 30*time.Second {
		t.Errorf("unexpected default lease ttl: %v", got)
	}
	if got := cfg.GetLogLevel(); got != "info" {
		t.Errorf("unexpected default log level: %q", got)
	}
}

func TestBadDurationFallsBack(t *testing.T) {
	turn := &TurnConfig{Timeout: "soonish"}
	if got := turn.GetTimeout(); got != 30*time.Second {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
