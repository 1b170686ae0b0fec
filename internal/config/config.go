// Package config loads the YAML configuration for the CLI and REST entry
// points, the same os.ReadFile-plus-yaml.Unmarshal shape the teacher
// uses for its own federation layout file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oidf-tools/ofresolve/internal/entityid"
)

// HTTP holds the Fetcher's transport settings.
type HTTP struct {
	TimeoutSeconds     int  `yaml:"timeout_seconds"`
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Config is the top-level configuration file shape.
type Config struct {
	ListenAddr   string   `yaml:"listen_addr"`
	TrustAnchors []string `yaml:"trust_anchors"`
	HTTP         HTTP     `yaml:"http"`
	LogLevel     string   `yaml:"log_level"`
}

// Load reads and parses the YAML configuration file at path, applies
// defaults, and validates it.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		c.HTTP.TimeoutSeconds = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if len(c.TrustAnchors) == 0 {
		return fmt.Errorf("config: at least one trust anchor is required")
	}
	for _, raw := range c.TrustAnchors {
		if _, err := entityid.Parse(raw); err != nil {
			return fmt.Errorf("config: invalid trust anchor %q: %w", raw, err)
		}
	}
	return nil
}

// Timeout returns the configured HTTP client timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// AnchorIDs parses TrustAnchors into normalized entity identifiers.
func (c *Config) AnchorIDs() ([]entityid.ID, error) {
	ids := make([]entityid.ID, 0, len(c.TrustAnchors))
	for _, raw := range c.TrustAnchors {
		id, err := entityid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
