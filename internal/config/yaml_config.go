package config

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// osdbConfigKeys lists every key IsKnownConfigKey recognizes, so a
// caller can reject a typo before it is silently written to
// config.yaml and ignored at the next daemon start.
var osdbConfigKeys = map[string]bool{
	"socket":                 true,
	"db-dir":                 true,
	"db-name":                true,
	"pid-file":               true,
	"log-file":               true,
	"log-level":              true,
	"block-size":             true,
	"result-sort-threshold":  true,
	"stall-threshold-bytes":  true,
	"walwatch.poll-interval": true,
	"lock-timeout":           true,
}

// IsKnownConfigKey reports whether key is one Initialize's defaults
// recognize.
func IsKnownConfigKey(key string) bool {
	return osdbConfigKeys[key]
}

// SetYamlConfig sets a configuration value in the project's
// .osdb/config.yaml file, preserving the rest of the file's content
// and comments.
func SetYamlConfig(key, value string) error {
	if err := validateConfigValue(key, value); err != nil {
		return err
	}

	configPath, err := findProjectConfigYaml()
	if err != nil {
		return err
	}

	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is from findProjectConfigYaml
	if err != nil {
		return fmt.Errorf("failed to read config.yaml: %w", err)
	}

	newContent, err := updateYamlKey(string(content), key, value)
	if err != nil {
		return err
	}

	if err := os.WriteFile(configPath, []byte(newContent), 0600); err != nil {
		return fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return nil
}

// GetYamlConfig gets a configuration value from config.yaml, returning
// the empty string if the key is not found or viper has not loaded a
// config file.
func GetYamlConfig(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// findProjectConfigYaml finds the project's .osdb/config.yaml file by
// walking up from the current directory.
func findProjectConfigYaml() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		configPath := filepath.Join(dir, ".osdb", "config.yaml")
		if _, statErr := os.Stat(configPath); statErr == nil {
			return configPath, nil
		}
	}
	return "", fmt.Errorf("no .osdb/config.yaml found")
}

// updateYamlKey updates a key in yaml content, handling commented-out
// keys. If the key exists (commented or not) it is updated in place;
// otherwise it is appended at the end.
func updateYamlKey(content, key, value string) (string, error) {
	formattedValue := formatYamlValue(value)
	newLine := fmt.Sprintf("%s: %s", key, formattedValue)

	keyPattern := buildKeyPattern(key)
	found := false
	var result []string

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if indent, ok := keyPattern(line); ok {
			result = append(result, indent+newLine)
			found = true
		} else {
			result = append(result, line)
		}
	}

	if !found {
		if len(result) > 0 && result[len(result)-1] != "" {
			result = append(result, "")
		}
		result = append(result, newLine)
	}
	return strings.Join(result, "\n"), nil
}

// buildKeyPattern returns a matcher for "key:" lines, commented or
// not, reporting the line's leading whitespace on a match.
func buildKeyPattern(key string) func(line string) (indent string, ok bool) {
	prefix := key + ":"
	return func(line string) (string, bool) {
		trimmed := strings.TrimLeft(line, " \t")
		indent := line[:len(line)-len(trimmed)]
		body := strings.TrimPrefix(trimmed, "#")
		body = strings.TrimLeft(body, " \t")
		if strings.HasPrefix(body, prefix) {
			return indent, true
		}
		return "", false
	}
}

// formatYamlValue formats a value appropriately for YAML.
func formatYamlValue(value string) string {
	lower := strings.ToLower(value)
	if lower == "true" || lower == "false" {
		return lower
	}
	if isNumeric(value) {
		return value
	}
	if isDuration(value) {
		return value
	}
	return fmt.Sprintf("%q", value)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '-' && i == 0 {
			continue
		}
		if c == '.' {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isDuration(s string) bool {
	if len(s) < 2 {
		return false
	}
	suffix := s[len(s)-1]
	if suffix != 's' && suffix != 'm' && suffix != 'h' {
		return false
	}
	return isNumeric(s[:len(s)-1])
}

// validateConfigValue validates a configuration value before it is
// written, rejecting the values that would make the daemon fail to
// start rather than letting a bad config.yaml surface as a confusing
// runtime error later.
func validateConfigValue(key, value string) error {
	if !IsKnownConfigKey(key) {
		return fmt.Errorf("unknown config key %q", key)
	}
	switch key {
	case "result-sort-threshold", "stall-threshold-bytes", "block-size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("%s must be a positive integer, got %q", key, value)
		}
		if n <= 0 {
			return fmt.Errorf("%s must be at least 1, got %d", key, n)
		}
	case "log-level":
		switch value {
		case "debug", "info", "warn", "error":
		default:
			return fmt.Errorf("log-level must be one of debug, info, warn, error, got %q", value)
		}
	}
	return nil
}
