package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:1300" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Draft.MaxManagers != 10 {
		t.Errorf("max managers = %d", cfg.Draft.MaxManagers)
	}
	if len(cfg.Draft.Quota) == 0 {
		t.Error("default quota is empty")
	}
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  addr: "10.0.0.1:1300"
draft:
  id: "42"
  max_managers: 4
  quota: [QB, RB]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("DRAFTWIRE_SERVER_ADDR", "10.0.0.2:1300")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Addr != "10.0.0.2:1300" {
		t.Errorf("env override lost: addr = %q", cfg.Server.Addr)
	}
	if cfg.Draft.ID != "42" || cfg.Draft.MaxManagers != 4 {
		t.Errorf("file values lost: %+v", cfg.Draft)
	}

	quota, err := cfg.Quota()
	if err != nil {
		t.Fatalf("quota: %v", err)
	}
	if len(quota) != 2 {
		t.Errorf("quota = %v", quota)
	}
}

func TestLoadRejectsBadQuota(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
draft:
  id: "1"
  max_managers: 4
  quota: [GK]
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown position in quota")
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http addr = %q", cfg.HTTP.Addr)
	}
}
