// Package browser owns the headless Chrome used for live captures: launch
// or connect, stealth tabs, and recycling after a fixed number of captures
// or a maximum lifetime.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// Config configures the browser manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of an external Chrome.
	// Empty launches a local headless Chrome.
	RemoteURL string

	// ResourceBlocking lists resource types to block in every tab
	// (images, fonts, media). Blocking stylesheets breaks computed styles.
	ResourceBlocking []string

	// Stealth applies go-rod/stealth to new tabs.
	Stealth bool

	// NavTimeout bounds navigation plus load. Default: 30s.
	NavTimeout time.Duration

	// RecycleAfter restarts Chrome after this many tabs. Default: 200.
	RecycleAfter int

	// MaxLifetime restarts Chrome once it has been up this long. Default: 4h.
	MaxLifetime time.Duration

	// URLCheck vets every http(s) request a tab makes, redirects and
	// subresources included. Rejected requests fail as blocked by client.
	URLCheck func(ctx context.Context, rawURL string) error

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 30 * time.Second
	}
	if c.RecycleAfter <= 0 {
		c.RecycleAfter = 200
	}
	if c.MaxLifetime <= 0 {
		c.MaxLifetime = 4 * time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager starts Chrome lazily and hands out tabs. It is safe for
// concurrent use; recycling waits for open tabs to close.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	startAt time.Time
	opened  int
	closed  bool

	tabs sync.WaitGroup
}

// NewManager creates a Manager. Chrome starts on the first Acquire.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// Acquire returns a connected browser, starting or recycling Chrome as
// needed. Every successful Acquire must be paired with Release.
func (m *Manager) Acquire(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, fmt.Errorf("browser: manager is closed")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.browser != nil && m.shouldRecycleLocked() {
		m.cfg.Logger.Info("browser: recycling",
			"uptime", time.Since(m.startAt), "tabs", m.opened)
		m.tabs.Wait()
		m.cleanupLocked()
	}
	if m.browser == nil {
		b, err := m.launch()
		if err != nil {
			return nil, err
		}
		m.browser = b
		m.startAt = time.Now()
		m.opened = 0
	}

	m.opened++
	m.tabs.Add(1)
	return m.browser, nil
}

// Release marks one Acquire as finished.
func (m *Manager) Release() {
	m.tabs.Done()
}

// Running reports whether Chrome is currently connected.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.browser != nil
}

// Close shuts Chrome down. Later Acquire calls fail.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.tabs.Wait()
	m.cleanupLocked()
	return nil
}

func (m *Manager) shouldRecycleLocked() bool {
	return m.opened >= m.cfg.RecycleAfter || time.Since(m.startAt) > m.cfg.MaxLifetime
}

func (m *Manager) launch() (*rod.Browser, error) {
	log := m.cfg.Logger

	wsURL := m.cfg.RemoteURL
	if wsURL != "" {
		log.Info("browser: connecting to remote", "url", wsURL)
	} else {
		l := launcher.New().Headless(true).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched local chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		m.cleanupLocked()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if err := b.IgnoreCertErrors(true); err != nil {
		log.Warn("browser: ignore cert errors failed", "error", err)
	}
	return b, nil
}

func (m *Manager) cleanupLocked() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
}
