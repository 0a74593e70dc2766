// Package config handles pagecopy configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sidekick/styleclone"
)

// Config is the top-level pagecopy configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Copy    CopyConfig    `yaml:"copy"`
	Sinks   []SinkConfig  `yaml:"sinks"`
	Server  ServerConfig  `yaml:"server"`
	Routes  []RouteConfig `yaml:"routes"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Disable          bool          `yaml:"disable"` // no Chrome: browser-level copies fail, auto stays on HTTP
	Remote           string        `yaml:"remote"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	Stealth          bool          `yaml:"stealth"`
	NavTimeout       time.Duration `yaml:"nav_timeout"`
}

// CopyConfig controls how pages are acquired and post-processed.
type CopyConfig struct {
	Level       string        `yaml:"level"` // http | browser | auto
	Rules       []StyleRule   `yaml:"rules"`
	Sanitize    bool          `yaml:"sanitize"`
	Markdown    bool          `yaml:"markdown"`
	LinkedCSS   bool          `yaml:"linked_css"` // fetch <link rel=stylesheet> on the HTTP path
	UserAgent   string        `yaml:"user_agent"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// AllowPrivate lets copies, redirects and stylesheet fetches reach
	// loopback and private addresses. Off by default.
	AllowPrivate bool `yaml:"allow_private"`
}

// StyleRule is the YAML form of styleclone.Rule.
type StyleRule struct {
	Property string `yaml:"property"`
	Exclude  string `yaml:"exclude"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type string `yaml:"type"` // stdout | webhook
	URL  string `yaml:"url"`  // for webhook
}

// ServerConfig configures sidekickd.
type ServerConfig struct {
	Addr        string        `yaml:"addr"`
	DBPath      string        `yaml:"db_path"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	KeepPerPage int           `yaml:"keep_per_page"`
	RateLimit   RateLimit     `yaml:"rate_limit"`
}

// RateLimit bounds operation calls per client IP. Zero Requests disables
// it.
type RateLimit struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// RouteConfig overrides where an operation runs: "local" (default),
// "noop", or a registered transport such as "http" with an endpoint.
type RouteConfig struct {
	Service  string         `yaml:"service"`
	Strategy string         `yaml:"strategy"`
	Endpoint string         `yaml:"endpoint"`
	Config   map[string]any `yaml:"config"` // transport options, e.g. timeout_ms
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes YAML configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if _, err := cfg.Copy.StyleRules(); err != nil {
		return nil, err
	}
	switch cfg.Copy.Level {
	case "", "auto", "http", "browser":
	default:
		return nil, fmt.Errorf("config: unknown copy level %q", cfg.Copy.Level)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Browser.NavTimeout <= 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Copy.Level == "" {
		c.Copy.Level = "auto"
	}
	if c.Copy.HTTPTimeout <= 0 {
		c.Copy.HTTPTimeout = 30 * time.Second
	}
	if c.Copy.UserAgent == "" {
		c.Copy.UserAgent = "Mozilla/5.0 (compatible; Sidekick/1.0)"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8787"
	}
	if c.Server.CallTimeout <= 0 {
		c.Server.CallTimeout = 60 * time.Second
	}
	if c.Server.KeepPerPage <= 0 {
		c.Server.KeepPerPage = 20
	}
	if c.Server.RateLimit.Requests > 0 && c.Server.RateLimit.Window <= 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	for i := range c.Routes {
		if c.Routes[i].Strategy == "" {
			c.Routes[i].Strategy = "local"
		}
	}
}

// StyleRules compiles the configured rules. No rules configured means
// styleclone.DefaultRules.
func (c CopyConfig) StyleRules() ([]styleclone.Rule, error) {
	if len(c.Rules) == 0 {
		return styleclone.DefaultRules(), nil
	}
	rules := make([]styleclone.Rule, 0, len(c.Rules))
	for _, r := range c.Rules {
		if r.Property == "" {
			return nil, fmt.Errorf("config: style rule without property")
		}
		rule := styleclone.Rule{Property: r.Property}
		if r.Exclude != "" {
			re, err := regexp.Compile(r.Exclude)
			if err != nil {
				return nil, fmt.Errorf("config: rule %s: exclude: %w", r.Property, err)
			}
			rule.Exclude = re
		}
		rules = append(rules, rule)
	}
	return rules, nil
}
