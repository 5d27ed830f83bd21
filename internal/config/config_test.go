package config

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Name != "goldbox" {
		t.Errorf("expected Name=goldbox, got %s", cfg.Name)
	}
	if cfg.PostProcess.MinRedundancyLength != 20 {
		t.Errorf("expected MinRedundancyLength=20, got %d", cfg.PostProcess.MinRedundancyLength)
	}
	if cfg.PostProcess.ContainmentRatio != 0.9 {
		t.Errorf("expected ContainmentRatio=0.9, got %f", cfg.PostProcess.ContainmentRatio)
	}
	if cfg.Translate.MaxConcurrent != 4 {
		t.Errorf("expected MaxConcurrent=4, got %d", cfg.Translate.MaxConcurrent)
	}
}

func TestConfig_SaveLoad(t *testing.T) {
	t.Setenv("GOLDBOX_CACHE_PATH", "")
	t.Setenv("GOLDBOX_DEBUG", "")

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Cache.PersistPath = "/tmp/schema.db"
	cfg.PostProcess.MinRedundancyLength = 32

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Cache.PersistPath != "/tmp/schema.db" {
		t.Errorf("expected PersistPath=/tmp/schema.db, got %s", loaded.Cache.PersistPath)
	}
	if loaded.PostProcess.MinRedundancyLength != 32 {
		t.Errorf("expected MinRedundancyLength=32, got %d", loaded.PostProcess.MinRedundancyLength)
	}
}

func TestConfig_LoadMissingReturnsDefaults(t *testing.T) {
	t.Setenv("GOLDBOX_CACHE_PATH", "")
	t.Setenv("GOLDBOX_DEBUG", "")

	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.PostProcess.ContainmentRatio != 0.9 {
		t.Errorf("expected defaults, got %+v", loaded.PostProcess)
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Setenv("GOLDBOX_CACHE_PATH", "/data/cache.db")
	t.Setenv("GOLDBOX_DEBUG", "1")

	loaded, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Cache.PersistPath != "/data/cache.db" {
		t.Errorf("expected env override for PersistPath, got %s", loaded.Cache.PersistPath)
	}
	if !loaded.Logging.DebugMode || loaded.Logging.Level != "debug" {
		t.Errorf("expected debug override, got %+v", loaded.Logging)
	}
}
