// Package config loads the client configuration. Precedence, lowest to
// highest: built-in defaults, the YAML config file, then QUILL_*
// environment variables. Tokens are stored next to the config file but
// never inside it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "QUILL_"

// Config is the application configuration.
type Config struct {
	API struct {
		BaseURL string `koanf:"base_url"`
		Timeout int    `koanf:"timeout"` // seconds, non-stream requests only
	} `koanf:"api"`

	Reveal struct {
		Interval int `koanf:"interval"` // milliseconds per reveal step
		Step     int `koanf:"step"`     // characters per reveal step
	} `koanf:"reveal"`

	Log struct {
		Level string `koanf:"level"`
		File  string `koanf:"file"`
	} `koanf:"log"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"api.base_url":    "http://localhost:8000",
		"api.timeout":     30,
		"reveal.interval": 20,
		"reveal.step":     3,
		"log.level":       "info",
		"log.file":        "",
	}
}

// Dir returns the per-user directory holding the config file and the
// token store.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving config dir: %w", err)
	}
	return filepath.Join(base, "quill"), nil
}

// DefaultPath returns the default config file location.
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// TokenPath returns the token store location.
func TokenPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "tokens.json"), nil
}

// Load reads the configuration. An explicit configPath must exist; with
// configPath empty the default location is used if present and silently
// skipped otherwise.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	k.Load(confmap.Provider(defaults(), "."), nil)

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config %s: %w", configPath, err)
		}
	} else if path, err := DefaultPath(); err == nil {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("loading config %s: %w", path, err)
			}
		}
	}

	// QUILL_API__BASE_URL=... overrides api.base_url. Double underscore
	// separates key segments, single underscores belong to the key.
	k.Load(env.Provider(envPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		return strings.ReplaceAll(strings.ToLower(s), "__", ".")
	}), nil)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.API.BaseURL = strings.TrimRight(cfg.API.BaseURL, "/")
	return &cfg, nil
}

// Validate reports configuration the client cannot run with.
func Validate(cfg *Config) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if cfg.API.Timeout < 0 {
		return fmt.Errorf("api.timeout must not be negative")
	}
	if cfg.Reveal.Interval < 0 || cfg.Reveal.Step < 0 {
		return fmt.Errorf("reveal.interval and reveal.step must not be negative")
	}
	return nil
}

// WriteDefault creates a starter config file at path. Refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	sample := `# quill configuration

api:
  # Chat server to talk to.
  base_url: "http://localhost:8000"
  # Request timeout in seconds. Streams are exempt.
  timeout: 30

reveal:
  # Streaming text reveal cadence: every <interval> ms, <step> characters.
  interval: 20
  step: 3

log:
  # debug, info, warn, error
  level: "info"
  # Optional log file. The TUI keeps the terminal clean: without a
  # file, interactive logs are discarded.
  file: ""
`

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, []byte(sample), 0o644)
}
