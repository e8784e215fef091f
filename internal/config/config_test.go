package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebPort != Default().WebPort {
		t.Errorf("expected default web port, got %d", cfg.WebPort)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	content := `{"web_port": 9999, "embedding_mode": "piggyback"}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WebPort != 9999 {
		t.Errorf("expected web port 9999, got %d", cfg.WebPort)
	}
	if cfg.EmbeddingMode != EmbeddingModePiggyback {
		t.Errorf("expected piggyback mode, got %q", cfg.EmbeddingMode)
	}
	if cfg.Graph.MaxDegree != Default().Graph.MaxDegree {
		t.Errorf("expected default graph config to be preserved")
	}
}

func TestLoadMalformedFileErrors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for malformed config.json")
	}
}

func TestApplyEnvOverridesDataDir(t *testing.T) {
	t.Setenv("LAMINARK_DATA_DIR", "/tmp/laminark-test-data")
	cfg := Default()
	applyEnv(cfg)
	if cfg.DataDir != "/tmp/laminark-test-data" {
		t.Errorf("expected env override, got %q", cfg.DataDir)
	}
}
