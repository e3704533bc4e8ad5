package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StubAddr != "localhost:3333" || cfg.ListenPort != 9223 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StubAddr != "localhost:3333" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frdbg.yaml")
	data := "stub_addr: 10.0.0.5:2331\nmax_list_items: 64\ncores: 2\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StubAddr != "10.0.0.5:2331" {
		t.Errorf("StubAddr = %q", cfg.StubAddr)
	}
	if cfg.MaxListItems != 64 {
		t.Errorf("MaxListItems = %d", cfg.MaxListItems)
	}
	if cfg.Cores != 2 {
		t.Errorf("Cores = %d", cfg.Cores)
	}
	// Untouched keys keep their defaults.
	if cfg.ListenPort != 9223 {
		t.Errorf("ListenPort = %d", cfg.ListenPort)
	}
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frdbg.yaml")
	if err := os.WriteFile(path, []byte("stub_addr: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}
