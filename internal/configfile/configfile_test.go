package configfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig(8192, 3)

	if cfg.BlockSize != 8192 {
		t.Errorf("BlockSize = %d, want 8192", cfg.BlockSize)
	}
	if cfg.DBID != 3 {
		t.Errorf("DBID = %d, want 3", cfg.DBID)
	}
	if cfg.Backend != BackendOSDB {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendOSDB)
	}
	if cfg.Generation != Generation {
		t.Errorf("Generation = %d, want %d", cfg.Generation, Generation)
	}
}

func TestLoadSaveRoundtrip(t *testing.T) {
	dbDir := t.TempDir()
	cfg := DefaultConfig(4096, 7)

	if err := cfg.Save(dbDir); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load(dbDir)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load() returned nil config")
	}
	if loaded.BlockSize != cfg.BlockSize {
		t.Errorf("BlockSize = %d, want %d", loaded.BlockSize, cfg.BlockSize)
	}
	if loaded.DBID != cfg.DBID {
		t.Errorf("DBID = %d, want %d", loaded.DBID, cfg.DBID)
	}
}

func TestLoadNonexistent(t *testing.T) {
	dbDir := t.TempDir()

	cfg, err := Load(dbDir)
	if err != nil {
		t.Fatalf("Load() returned error for nonexistent sidecar: %v", err)
	}
	if cfg != nil {
		t.Errorf("Load() = %v, want nil for nonexistent sidecar", cfg)
	}
}

func TestConfigPath(t *testing.T) {
	dbDir := "/home/user/project/.osdb"
	got := ConfigPath(dbDir)
	want := filepath.Join(dbDir, "metadata.json")
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestGetBackendDefaultsWhenEmpty(t *testing.T) {
	cfg := &Config{}
	if got := cfg.GetBackend(); got != BackendOSDB {
		t.Errorf("GetBackend() = %q, want %q", got, BackendOSDB)
	}
}

func TestGetBlockSizeFallsBackOnZero(t *testing.T) {
	cfg := &Config{BlockSize: 0}
	if got := cfg.GetBlockSize(8192); got != 8192 {
		t.Errorf("GetBlockSize() = %d, want 8192", got)
	}
	cfg.BlockSize = 16384
	if got := cfg.GetBlockSize(8192); got != 16384 {
		t.Errorf("GetBlockSize() = %d, want 16384", got)
	}
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	dbDir := t.TempDir()
	if err := os.WriteFile(ConfigPath(dbDir), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(dbDir); err == nil {
		t.Fatal("expected error for malformed metadata.json")
	}
}
