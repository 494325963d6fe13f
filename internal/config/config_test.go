package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesConfigOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synco")
	t.Setenv("SYNCO_CONFIG", path)
	t.Setenv("USER", "alice")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ID != "alice" {
		t.Fatalf("expected id alice, got %q", cfg.ID)
	}
	if len(cfg.ListenOn) != 2 {
		t.Fatalf("expected 2 default listen addrs, got %v", cfg.ListenOn)
	}
	if cfg.PrivateKey == "" {
		t.Fatal("expected a generated private key")
	}

	if _, err := cfg.Keypair(); err != nil {
		t.Fatalf("keypair: %v", err)
	}
}

func TestLoadReadsExistingConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synco")
	t.Setenv("SYNCO_CONFIG", path)
	t.Setenv("USER", "first-run-user")

	first, err := Load()
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	t.Setenv("USER", "should-be-ignored")
	second, err := Load()
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.ID != first.ID || second.PrivateKey != first.PrivateKey {
		t.Fatalf("expected config to persist across loads, got %+v vs %+v", first, second)
	}
}

func TestLoadRejectsCorruptConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "synco")
	t.Setenv("SYNCO_CONFIG", path)

	if err := os.WriteFile(path, []byte("not: [valid"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := Load(); err == nil {
		t.Fatal("expected decode error for corrupt config")
	}
}
