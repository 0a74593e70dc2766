package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Copy.Level != "auto" || cfg.Browser.NavTimeout != 30*time.Second {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.Server.Addr != ":8787" || cfg.Server.KeepPerPage != 20 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	rules, err := cfg.Copy.StyleRules()
	if err != nil || len(rules) != 1 || rules[0].Property != "background-image" {
		t.Fatalf("default rules = %+v, %v", rules, err)
	}
}

func TestParse_Full(t *testing.T) {
	cfg, err := Parse([]byte(`
browser:
  remote: ws://chrome:9222/devtools/browser/x
  stealth: true
  resource_blocking: [images, fonts]
  nav_timeout: 10s
copy:
  level: http
  sanitize: true
  markdown: true
  rules:
    - property: background-image
      exclude: ^none$
    - property: background-color
      exclude: ^rgba\(0, 0, 0, 0\)$
    - property: color
sinks:
  - type: stdout
  - type: webhook
    url: https://hooks.example.com/in
routes:
  - service: copy_page
    strategy: http
    endpoint: https://worker.example.com/api/call/copy_page
    config: {timeout_ms: 5000}
  - service: meta_display
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Copy.Level != "http" || !cfg.Copy.Sanitize || !cfg.Browser.Stealth {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Browser.NavTimeout != 10*time.Second || len(cfg.Browser.ResourceBlocking) != 2 {
		t.Errorf("browser = %+v", cfg.Browser)
	}
	if len(cfg.Sinks) != 2 || cfg.Sinks[1].URL != "https://hooks.example.com/in" {
		t.Errorf("sinks = %+v", cfg.Sinks)
	}
	if len(cfg.Routes) != 2 || cfg.Routes[1].Strategy != "local" {
		t.Errorf("routes = %+v", cfg.Routes)
	}
	if cfg.Routes[0].Config["timeout_ms"] != 5000 {
		t.Errorf("route config = %#v", cfg.Routes[0].Config)
	}

	rules, err := cfg.Copy.StyleRules()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 {
		t.Fatalf("rules = %+v", rules)
	}
	if !rules[1].Exclude.MatchString("rgba(0, 0, 0, 0)") || rules[2].Exclude != nil {
		t.Errorf("exclusions not compiled as expected: %+v", rules)
	}
}

func TestParse_Invalid(t *testing.T) {
	for name, src := range map[string]string{
		"bad yaml":     "copy: [",
		"bad level":    "copy: {level: turbo}",
		"bad regexp":   "copy: {rules: [{property: color, exclude: '('}]}",
		"rule no prop": "copy: {rules: [{exclude: x}]}",
	} {
		if _, err := Parse([]byte(src)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidekick.yaml")
	if err := os.WriteFile(path, []byte("server: {addr: ':9000'}\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9000" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file must fail")
	}
}

func TestRateLimitDefaults(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  rate_limit: {requests: 10}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.RateLimit.Requests != 10 || cfg.Server.RateLimit.Window != time.Minute {
		t.Errorf("rate_limit = %+v", cfg.Server.RateLimit)
	}

	cfg, _ = Parse([]byte("{}"))
	if cfg.Server.RateLimit.Window != 0 {
		t.Errorf("disabled limiter got a window: %+v", cfg.Server.RateLimit)
	}
}

func TestAllowPrivate(t *testing.T) {
	cfg, err := Parse([]byte("copy: {allow_private: true}\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Copy.AllowPrivate {
		t.Error("allow_private not loaded")
	}

	cfg, _ = Parse([]byte("{}"))
	if cfg.Copy.AllowPrivate {
		t.Error("private addresses must be refused by default")
	}
}
