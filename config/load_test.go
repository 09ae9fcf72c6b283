package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func noenv(string) string { return "" }

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Logging.Level != "info" {
		t.Errorf("expected default log level 'info', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("expected default log format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.CacheSize != 256 {
		t.Errorf("expected default cache size 256, got %d", cfg.CacheSize)
	}
	if cfg.Debounce() != 100*time.Millisecond {
		t.Errorf("expected default debounce 100ms, got %v", cfg.Debounce())
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestInterpolateEnv(t *testing.T) {
	getenv := func(key string) string {
		switch key {
		case "TEST_HOST":
			return "example.com"
		case "TEST_PORT":
			return "5432"
		default:
			return ""
		}
	}

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple substitution",
			input:    "host: ${TEST_HOST}",
			expected: "host: example.com",
		},
		{
			name:     "with default (env set)",
			input:    "host: ${TEST_HOST:-localhost}",
			expected: "host: example.com",
		},
		{
			name:     "with default (env not set)",
			input:    "host: ${UNSET_VAR:-localhost}",
			expected: "host: localhost",
		},
		{
			name:     "multiple substitutions",
			input:    "addr: ${TEST_HOST}:${TEST_PORT}",
			expected: "addr: example.com:5432",
		},
		{
			name:     "unset without default",
			input:    "locale: ${UNSET_VAR}",
			expected: "locale: ",
		},
		{
			name:     "no substitution",
			input:    "locale: de_CH",
			expected: "locale: de_CH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(interpolateEnv([]byte(tt.input), getenv))
			if got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "iuql.yaml")
	data := `
repositories:
  - name: local
    location: units/main.yaml
  - name: cache
    location: sqlite:data/units.db
  - name: shared
    location: !secret postgres://iuql:${DB_PASSWORD}@db/units
logging:
  level: debug
  format: json
cache_size: 64
locale: ${LOCALE:-de_CH}
parameters:
  os: linux
  limit: 3
watch:
  debounce: 250ms
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	getenv := func(key string) string {
		if key == "DB_PASSWORD" {
			return "hunter2"
		}
		return ""
	}
	cfg, resolved, err := LoadWithPath(path, getenv)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if resolved != path {
		t.Errorf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.BaseDir != dir {
		t.Errorf("expected base dir %q, got %q", dir, cfg.BaseDir)
	}
	if len(cfg.Repositories) != 3 {
		t.Fatalf("expected 3 repositories, got %d", len(cfg.Repositories))
	}

	local, _ := cfg.Repository("local")
	if want := filepath.Join(dir, "units", "main.yaml"); local.Location.DSN() != want {
		t.Errorf("expected local location %q, got %q", want, local.Location.DSN())
	}
	cache, _ := cfg.Repository("cache")
	if want := "sqlite:" + filepath.Join(dir, "data", "units.db"); cache.Location.DSN() != want {
		t.Errorf("expected cache location %q, got %q", want, cache.Location.DSN())
	}
	shared, ok := cfg.Repository("shared")
	if !ok {
		t.Fatal("shared repository not found")
	}
	if shared.Location.DSN() != "postgres://iuql:hunter2@db/units" {
		t.Errorf("unexpected shared location %q", shared.Location.DSN())
	}
	if !shared.Location.Hidden() || shared.Location.String() != "[hidden]" {
		t.Error("expected shared location to stay secret")
	}

	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging config %+v", cfg.Logging)
	}
	if cfg.Logging.Output != "stderr" {
		t.Errorf("expected default output to survive, got %q", cfg.Logging.Output)
	}
	if cfg.CacheSize != 64 {
		t.Errorf("expected cache size 64, got %d", cfg.CacheSize)
	}
	if cfg.Locale != "de_CH" {
		t.Errorf("expected locale de_CH, got %q", cfg.Locale)
	}
	if cfg.Parameters["os"] != "linux" || cfg.Parameters["limit"] != 3 {
		t.Errorf("unexpected parameters %v", cfg.Parameters)
	}
	if cfg.Debounce() != 250*time.Millisecond {
		t.Errorf("expected debounce 250ms, got %v", cfg.Debounce())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing name", "repositories:\n  - location: a.yaml\n", "name is required"},
		{"missing location", "repositories:\n  - name: a\n", "location is required"},
		{"duplicate name", "repositories:\n  - {name: a, location: a.yaml}\n  - {name: a, location: b.yaml}\n", `duplicate name "a"`},
		{"bad level", "logging:\n  level: loud\n", "logging.level"},
		{"bad format", "logging:\n  format: xml\n", "logging.format"},
		{"bad cache size", "cache_size: 0\n", "cache_size"},
		{"bad debounce", "watch:\n  debounce: soon\n", "watch.debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), "", noenv)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("locale: fr\n"), 0644); err != nil {
		t.Fatal(err)
	}

	getenv := func(key string) string {
		if key == "IUQL_CONFIG" {
			return path
		}
		return ""
	}
	cfg, err := Load("", getenv)
	if err != nil {
		t.Fatalf("load via IUQL_CONFIG failed: %v", err)
	}
	if cfg.Locale != "fr" {
		t.Errorf("expected locale fr, got %q", cfg.Locale)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml"), noenv); err == nil {
		t.Error("expected error for missing explicit config")
	}

	t.Chdir(dir)
	t.Setenv("HOME", dir)
	if _, err := Load("", noenv); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
