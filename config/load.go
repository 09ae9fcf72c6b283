package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned when no config file was given and none exists in
// the default locations.
var ErrNotFound = errors.New("no config file found (tried IUQL_CONFIG, iuql.yaml, ~/.config/iuql/iuql.yaml)")

// Load reads configuration from a file with ENV interpolation.
// If configPath is empty, it searches default locations.
func Load(configPath string, getenv func(string) string) (*Config, error) {
	cfg, _, err := LoadWithPath(configPath, getenv)
	return cfg, err
}

// LoadWithPath reads configuration and returns both the config and the resolved path.
func LoadWithPath(configPath string, getenv func(string) string) (*Config, string, error) {
	path, err := resolveConfigPath(configPath, getenv)
	if err != nil {
		return nil, "", err
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(data, filepath.Dir(absPath), getenv)
	if err != nil {
		return nil, "", err
	}
	return cfg, absPath, nil
}

// Parse decodes configuration from data on top of the defaults. Relative
// repository paths are resolved against baseDir.
func Parse(data []byte, baseDir string, getenv func(string) string) (*Config, error) {
	data = interpolateEnv(data, getenv)

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.BaseDir = baseDir

	for i := range cfg.Repositories {
		cfg.Repositories[i].Location = cfg.Repositories[i].Location.resolve(baseDir)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func Validate(cfg *Config) error {
	var errs []string

	seen := make(map[string]bool)
	for i, r := range cfg.Repositories {
		if r.Name == "" {
			errs = append(errs, fmt.Sprintf("repositories[%d]: name is required", i))
		} else if seen[r.Name] {
			errs = append(errs, fmt.Sprintf("repositories[%d]: duplicate name %q", i, r.Name))
		}
		seen[r.Name] = true
		if r.Location.DSN() == "" {
			errs = append(errs, fmt.Sprintf("repositories[%d]: location is required", i))
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: unknown level %q (debug, info, warn, error)", cfg.Logging.Level))
	}
	switch cfg.Logging.Format {
	case "text", "json", "logfmt":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: unknown format %q (text, json, logfmt)", cfg.Logging.Format))
	}

	if cfg.CacheSize < 1 {
		errs = append(errs, fmt.Sprintf("cache_size: must be positive, got %d", cfg.CacheSize))
	}

	if _, err := time.ParseDuration(cfg.Watch.Debounce); err != nil {
		errs = append(errs, fmt.Sprintf("watch.debounce: %v", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Debounce returns the parsed watch debounce duration.
func (c *Config) Debounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil {
		return 0
	}
	return d
}

// resolveConfigPath finds the config file to use.
// Search order: explicit path > IUQL_CONFIG env > ./iuql.yaml > ~/.config/iuql/iuql.yaml
func resolveConfigPath(explicit string, getenv func(string) string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := getenv("IUQL_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("IUQL_CONFIG file not found: %s", envPath)
		}
		return envPath, nil
	}

	if _, err := os.Stat("iuql.yaml"); err == nil {
		return "iuql.yaml", nil
	}

	home, err := os.UserHomeDir()
	if err == nil {
		xdgPath := filepath.Join(home, ".config", "iuql", "iuql.yaml")
		if _, err := os.Stat(xdgPath); err == nil {
			return xdgPath, nil
		}
	}

	return "", ErrNotFound
}

// envPattern matches ${VAR} or ${VAR:-default}
var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// interpolateEnv replaces ${VAR} and ${VAR:-default} patterns with environment values.
func interpolateEnv(data []byte, getenv func(string) string) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		parts := envPattern.FindSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := string(parts[1])
		value := getenv(varName)

		if value == "" && len(parts) >= 3 && len(parts[2]) > 0 {
			value = string(parts[2])
		}

		return []byte(value)
	})
}
