package config

// Config represents the complete iuql configuration
type Config struct {
	BaseDir      string         `yaml:"-"` // Directory containing config file, for resolving relative paths
	Repositories []Repository   `yaml:"repositories"`
	Logging      LoggingConfig  `yaml:"logging"`
	CacheSize    int            `yaml:"cache_size"` // Parsed expressions kept by the query engine
	Locale       string         `yaml:"locale"`     // Default locale for localized queries (e.g., "de_CH")
	Parameters   map[string]any `yaml:"parameters"` // Named query parameters, referenced as $name
	Watch        WatchConfig    `yaml:"watch"`
}

// Repository names a candidate source.
type Repository struct {
	Name     string   `yaml:"name"`
	Location Location `yaml:"location"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json or logfmt
	Output string `yaml:"output"` // stderr, stdout, or file path
}

// WatchConfig holds settings for the watch command
type WatchConfig struct {
	Debounce string `yaml:"debounce"` // Settle time after a change (e.g., "250ms")
}

// Defaults returns a Config with sensible defaults
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		CacheSize: 256,
		Watch: WatchConfig{
			Debounce: "100ms",
		},
	}
}

// Repository returns the repository with the given name.
func (c *Config) Repository(name string) (Repository, bool) {
	for _, r := range c.Repositories {
		if r.Name == name {
			return r, true
		}
	}
	return Repository{}, false
}
