// Package config loads the amflow server configuration from YAML or TOML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/roach88/amflow/internal/amflow"
	"github.com/roach88/amflow/internal/hub"
)

// Config is the server configuration.
type Config struct {
	// Addr is the listen address of the WebSocket server.
	Addr string `yaml:"addr" toml:"addr"`

	// Database is the SQLite file holding plays. Empty keeps plays in
	// memory for the life of the process.
	Database string `yaml:"database" toml:"database"`

	// MetricsPath serves Prometheus metrics. Empty disables metrics.
	MetricsPath string `yaml:"metrics_path" toml:"metrics_path"`

	// Namespace prefixes every metric name.
	Namespace string `yaml:"namespace" toml:"namespace"`

	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"log_level" toml:"log_level"`

	// ShutdownTimeout bounds graceful shutdown, as a Go duration string.
	ShutdownTimeout string `yaml:"shutdown_timeout" toml:"shutdown_timeout"`

	// Tokens grants a permission per authentication token.
	Tokens []TokenConfig `yaml:"tokens" toml:"tokens"`
}

// TokenConfig maps one token to the permission it grants.
type TokenConfig struct {
	Token             string `yaml:"token" toml:"token"`
	amflow.Permission `yaml:",inline"`
}

// Default returns the configuration used for keys a file leaves out.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1:8787",
		MetricsPath:     "/metrics",
		Namespace:       "amflow",
		LogLevel:        "info",
		ShutdownTimeout: "5s",
	}
}

// Load reads path, choosing the decoder by extension (.yaml, .yml or
// .toml). Unknown keys are errors. The result is validated.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		cfg, err = ParseYAML(data)
	case ".toml":
		cfg, err = ParseTOML(data)
	default:
		return Config{}, fmt.Errorf("config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ParseYAML decodes a YAML document over Default and validates it.
func ParseYAML(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parse yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ParseTOML decodes a TOML document over Default and validates it.
func ParseTOML(data []byte) (Config, error) {
	cfg := Default()

	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("parse toml: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("parse toml: unknown keys %s", strings.Join(keys, ", "))
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("addr is required")
	}
	if c.MetricsPath != "" && !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics_path %q must start with /", c.MetricsPath)
	}
	if c.MetricsPath == "/" {
		return errors.New("metrics_path must not be /")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	if _, err := c.Shutdown(); err != nil {
		return err
	}

	seen := make(map[string]bool, len(c.Tokens))
	for i, t := range c.Tokens {
		if t.Token == "" {
			return fmt.Errorf("tokens[%d]: token is required", i)
		}
		if seen[t.Token] {
			return fmt.Errorf("tokens[%d]: duplicate token", i)
		}
		seen[t.Token] = true
		if t.MaxEventPriority < 0 {
			return fmt.Errorf("tokens[%d]: max_event_priority must not be negative", i)
		}
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Shutdown parses ShutdownTimeout.
func (c Config) Shutdown() (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(c.ShutdownTimeout))
	if err != nil {
		return 0, fmt.Errorf("parse shutdown_timeout: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("shutdown_timeout %s must not be negative", d)
	}
	return d, nil
}

// TokenTable builds the authenticator for the hub.
func (c Config) TokenTable() hub.TokenTable {
	table := make(hub.TokenTable, len(c.Tokens))
	for _, t := range c.Tokens {
		table[t.Token] = t.Permission
	}
	return table
}
