// Package configfile holds the small per-database-directory metadata
// sidecar, a JSON file sitting next to sys.dt0 that the teacher's own
// internal/configfile played for its SQLite/Dolt backend: facts tied
// to one database directory rather than the whole daemon (internal/config
// is the daemon-wide viper singleton; this is the lightweight per-repo
// file beside it).
package configfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the sidecar's filename inside a database directory.
const ConfigFileName = "metadata.json"

// Generation is this sidecar format's own version, bumped whenever a
// field's meaning changes in a way a reader must branch on.
const Generation = 1

// Config is one database directory's durable metadata: the physical
// parameters sys.dt0 was created with, and the backend version that
// wrote it.
type Config struct {
	Generation int    `json:"generation"`
	BlockSize  int    `json:"block_size"`
	DBID       byte   `json:"db_id"`
	Backend    string `json:"backend,omitempty"` // "osdb" (default); reserved for a future alternate storage engine
}

// DefaultConfig returns the metadata a freshly created database
// directory is stamped with.
func DefaultConfig(blockSize int, dbID byte) *Config {
	return &Config{
		Generation: Generation,
		BlockSize:  blockSize,
		DBID:       dbID,
		Backend:    BackendOSDB,
	}
}

// ConfigPath returns the sidecar path within dbDir.
func ConfigPath(dbDir string) string {
	return filepath.Join(dbDir, ConfigFileName)
}

// Load reads dbDir's sidecar. A missing file is not an error: it
// returns (nil, nil) so a caller can fall back to DefaultConfig for a
// database directory being created for the first time.
func Load(dbDir string) (*Config, error) {
	data, err := os.ReadFile(ConfigPath(dbDir)) //nolint:gosec // path built from a caller-controlled database directory
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading metadata.json: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing metadata.json: %w", err)
	}
	return &cfg, nil
}

// Save writes c to dbDir's sidecar.
func (c *Config) Save(dbDir string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling metadata.json: %w", err)
	}
	if err := os.WriteFile(ConfigPath(dbDir), data, 0600); err != nil {
		return fmt.Errorf("writing metadata.json: %w", err)
	}
	return nil
}

// Backend constants. BackendOSDB is the only backend this engine
// implements; the field exists so a future alternate physical layout
// has somewhere to announce itself without a metadata.json format
// change.
const (
	BackendOSDB = "osdb"
)

// GetBackend returns the configured backend, defaulting to BackendOSDB
// for a sidecar predating the field.
func (c *Config) GetBackend() string {
	if c.Backend == "" {
		return BackendOSDB
	}
	return c.Backend
}

// GetBlockSize returns the configured block size, falling back to
// fallback when the sidecar predates the field or was never set.
func (c *Config) GetBlockSize(fallback int) int {
	if c.BlockSize <= 0 {
		return fallback
	}
	return c.BlockSize
}
