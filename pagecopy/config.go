package pagecopy

import (
	"github.com/hazyhaar/sidekick/pagecopy/internal/config"
)

// Config is the top-level sidekick configuration.
type Config = config.Config

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig = config.BrowserConfig

// CopyConfig controls acquisition and post-processing.
type CopyConfig = config.CopyConfig

// StyleRule is the YAML form of a styleclone rule.
type StyleRule = config.StyleRule

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// ServerConfig configures sidekickd.
type ServerConfig = config.ServerConfig

// RateLimit bounds operation calls per client IP.
type RateLimit = config.RateLimit

// RouteConfig overrides where an operation runs.
type RouteConfig = config.RouteConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}
