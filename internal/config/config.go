// Package config is the daemon's viper-backed configuration singleton.
// It mirrors the teacher's own internal/config: one package-level
// *viper.Viper, a fixed config-file search order, OSDB_-prefixed
// environment overrides, and typed Get* accessors layered over viper's
// untyped Get. internal/configfile is the smaller sibling: a per-
// database-directory JSON sidecar for facts that belong to one
// database directory rather than the whole daemon (block size,
// generation, backend version).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be
// called once at daemon startup, before the first Get* call.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD to find a project .osdb/config.yaml, so
	//    osdbd finds it from any subdirectory of a checked-out database.
	cwd, err := os.Getwd()
	if err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".osdb", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. XDG user config directory.
	if !configFileSet {
		if configDir, cErr := os.UserConfigDir(); cErr == nil {
			configPath := filepath.Join(configDir, "osdb", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory fallback.
	if !configFileSet {
		if homeDir, hErr := os.UserHomeDir(); hErr == nil {
			configPath := filepath.Join(homeDir, ".osdb", "config.yaml")
			if _, statErr := os.Stat(configPath); statErr == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("OSDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// setDefaults installs every key's programmatic default, the fallback
// a field falls back to with no config file and no environment
// override present.
func setDefaults(v *viper.Viper) {
	// Instance rendezvous socket, per spec.md §4.7's control connection.
	v.SetDefault("socket", ".osdb/osdbd.sock")

	// Database directory the daemon opens at startup.
	v.SetDefault("db-dir", ".osdb")
	v.SetDefault("db-name", "")

	// Daemon lifecycle files (PID file, log file), cmd/osdbd's own
	// bookkeeping the way cmd/bd/daemon.go tracks its own daemon.
	v.SetDefault("pid-file", ".osdb/osdbd.pid")
	v.SetDefault("log-file", ".osdb/osdbd.log")
	v.SetDefault("log-level", "info") // debug | info | warn | error

	// Physical table-file defaults, consulted only when a schema's
	// first data file does not exist yet.
	v.SetDefault("block-size", 8192)

	// Server-side ORDER BY buffering cutoff (spec.md §9 Open Question).
	v.SetDefault("result-sort-threshold", defaultResultSortThreshold)

	// Flow-control stall threshold (spec.md §4.7). Exposed through
	// StallThresholdBytes; internal/dispatch uses its own fixed 64 KiB
	// constant and does not read this key.
	v.SetDefault("stall-threshold-bytes", 64*1024)

	// Directory-watch poll interval. The key is accepted but nothing
	// reads it: internal/walwatch reacts to fsnotify events only.
	v.SetDefault("walwatch.poll-interval", "5s")

	// File-locking timeout, exposed through LockTimeout. Nothing reads
	// it: internal/tablefile's metadata lock blocks without a timeout.
	v.SetDefault("lock-timeout", "5s")
}

const defaultResultSortThreshold = 500

// ResetForTesting clears the config state, allowing Initialize() to be
// called again. Not thread-safe; single-threaded test use only.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// Set overrides a configuration value for the remainder of the
// process's lifetime.
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// ConfigFileUsed returns the path to the config file that was loaded,
// or the empty string if none was found.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// AllSettings returns every configuration setting as a map.
func AllSettings() map[string]interface{} {
	if v == nil {
		return map[string]interface{}{}
	}
	return v.AllSettings()
}

// SocketPath returns the instance rendezvous socket path, resolved
// relative to dbDir when it is not already absolute.
func SocketPath(dbDir string) string {
	p := GetString("socket")
	if p == "" {
		p = filepath.Join(dbDir, "osdbd.sock")
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dbDir, filepath.Base(p))
}

// ResultSortThreshold returns the configured server-side ORDER BY
// buffering cutoff, falling back to the package default when config
// has not been initialized or the key is unset.
func ResultSortThreshold() int {
	if v == nil {
		return defaultResultSortThreshold
	}
	n := v.GetInt("result-sort-threshold")
	if n <= 0 {
		return defaultResultSortThreshold
	}
	return n
}

// StallThresholdBytes returns the configured flow-control stall
// threshold in bytes.
func StallThresholdBytes() int {
	const fallback = 64 * 1024
	if v == nil {
		return fallback
	}
	n := v.GetInt("stall-threshold-bytes")
	if n <= 0 {
		return fallback
	}
	return n
}

// BlockSize returns the configured default physical block size for a
// newly created table file.
func BlockSize() int {
	const fallback = 8192
	if v == nil {
		return fallback
	}
	n := v.GetInt("block-size")
	if n <= 0 {
		return fallback
	}
	return n
}

// LockTimeout returns the configured flock acquisition timeout.
func LockTimeout() time.Duration {
	const fallback = 5 * time.Second
	d := GetDuration("lock-timeout")
	if d <= 0 {
		return fallback
	}
	return d
}
