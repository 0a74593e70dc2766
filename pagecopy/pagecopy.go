// Package pagecopy produces style-preserving copies of web pages. A Copier
// acquires the page over HTTP or through headless Chrome, inlines the
// configured computed styles with styleclone, optionally sanitises and
// renders the copy to Markdown, and emits the resulting snapshot to its
// sinks.
//
// Over HTTP, computed styles come from the static cascade resolver; in the
// browser they come from getComputedStyle, captured together with the
// markup in a single evaluation.
package pagecopy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/gosimple/slug"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"

	"github.com/hazyhaar/sidekick/cascade"
	"github.com/hazyhaar/sidekick/idgen"
	"github.com/hazyhaar/sidekick/netguard"
	"github.com/hazyhaar/sidekick/pagecopy/internal/browser"
	"github.com/hazyhaar/sidekick/pagecopy/internal/fetcher"
	"github.com/hazyhaar/sidekick/pagecopy/internal/sink"
	"github.com/hazyhaar/sidekick/snapshot"
	"github.com/hazyhaar/sidekick/styleclone"
)

// ErrBrowserDisabled is returned for browser-level copies when the
// configuration disables Chrome.
var ErrBrowserDisabled = errors.New("pagecopy: browser disabled")

// Level selects how a page is acquired.
type Level string

const (
	LevelAuto    Level = "auto"    // HTTP, escalating to the browser for thin or SPA pages
	LevelHTTP    Level = "http"    // HTTP only, static cascade
	LevelBrowser Level = "browser" // headless Chrome, live computed styles
)

// ParseLevel validates s. The empty string is LevelAuto.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LevelAuto, nil
	case LevelAuto, LevelHTTP, LevelBrowser:
		return l, nil
	default:
		return "", fmt.Errorf("pagecopy: unknown level %q", s)
	}
}

// Request asks for one page copy. An empty Level uses the configured one;
// an empty PageID is derived from the URL.
type Request struct {
	URL    string `json:"url"`
	PageID string `json:"page_id,omitempty"`
	Level  Level  `json:"level,omitempty"`
}

// Copier is the top-level orchestrator. It is safe for concurrent use.
type Copier struct {
	cfg      *Config
	rules    []styleclone.Rule
	props    []string
	policy   netguard.Policy
	mgr      *browser.Manager
	fetch    *fetcher.Fetcher
	sinkR    *sink.Router
	sanitize *bluemonday.Policy
	md       *converter.Converter
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Copier.
type Option func(*options)

type options struct {
	sinks  []Sink
	client *http.Client
	now    func() time.Time
}

// WithSinks adds output sinks.
func WithSinks(s ...Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, s...) }
}

// WithHTTPClient sets the client of the HTTP path.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithClock sets the time source of snapshot timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New creates a Copier. A nil cfg means DefaultConfig. Chrome is started
// on the first browser-level copy.
func New(cfg *Config, logger *slog.Logger, opts ...Option) (*Copier, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}

	rules, err := cfg.Copy.StyleRules()
	if err != nil {
		return nil, err
	}

	policy := netguard.Policy{AllowPrivate: cfg.Copy.AllowPrivate}
	check := func(ctx context.Context, rawURL string) error {
		_, err := policy.Check(ctx, rawURL)
		return err
	}

	fopts := []fetcher.Option{
		fetcher.WithLogger(logger),
		fetcher.WithUserAgent(cfg.Copy.UserAgent),
		fetcher.WithURLCheck(check),
	}
	if o.client != nil {
		fopts = append(fopts, fetcher.WithClient(o.client))
	} else {
		fopts = append(fopts, fetcher.WithClient(&http.Client{Timeout: cfg.Copy.HTTPTimeout}))
	}

	return &Copier{
		cfg:    cfg,
		rules:  rules,
		props:  styleclone.Properties(rules),
		policy: policy,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:        cfg.Browser.Remote,
			ResourceBlocking: cfg.Browser.ResourceBlocking,
			Stealth:          cfg.Browser.Stealth,
			NavTimeout:       cfg.Browser.NavTimeout,
			URLCheck:         check,
			Logger:           logger,
		}),
		fetch:    fetcher.New(fopts...),
		sinkR:    sink.NewRouter(logger, o.sinks...),
		sanitize: newSanitizer(),
		md:       newMarkdown(),
		logger:   logger,
		now:      o.now,
	}, nil
}

// Rules returns the style rules the Copier applies.
func (c *Copier) Rules() []styleclone.Rule {
	return c.rules
}

// Copy acquires req.URL at the requested level and returns its copy. The
// snapshot is also emitted to every sink; sink failures are logged, not
// returned.
func (c *Copier) Copy(ctx context.Context, req Request) (*snapshot.Snapshot, error) {
	u, err := c.policy.Check(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("pagecopy: %w", err)
	}
	if req.PageID == "" {
		req.PageID = PageIDFor(u)
	} else if err := netguard.ValidateIdentifier(req.PageID); err != nil {
		return nil, fmt.Errorf("pagecopy: page id: %w", err)
	}
	level := req.Level
	if level == "" {
		level = Level(c.cfg.Copy.Level)
	}

	var snap *snapshot.Snapshot
	switch level {
	case LevelHTTP:
		page, ferr := c.fetch.Fetch(ctx, u.String())
		if ferr != nil {
			return nil, fmt.Errorf("pagecopy: %w", ferr)
		}
		snap, err = c.fromPage(ctx, req, page)

	case LevelBrowser:
		snap, err = c.fromBrowser(ctx, req)

	case LevelAuto, "":
		page, ferr := c.fetch.Fetch(ctx, u.String())
		if blocked(ferr) {
			return nil, fmt.Errorf("pagecopy: %w", ferr)
		}
		if ferr == nil && (page.Sufficient || c.cfg.Browser.Disable) {
			snap, err = c.fromPage(ctx, req, page)
			break
		}
		if ferr != nil {
			c.logger.Warn("pagecopy: fetch failed, escalating to browser", "url", req.URL, "error", ferr)
		} else {
			c.logger.Info("pagecopy: content insufficient via HTTP, escalating to browser", "url", req.URL)
		}
		snap, err = c.fromBrowser(ctx, req)
		if err != nil && page != nil && ctx.Err() == nil {
			c.logger.Warn("pagecopy: browser failed, keeping HTTP copy", "url", req.URL, "error", err)
			snap, err = c.fromPage(ctx, req, page)
		}

	default:
		return nil, fmt.Errorf("pagecopy: unknown level %q", level)
	}
	if err != nil {
		return nil, err
	}

	c.emit(ctx, snap)
	return snap, nil
}

// CopyHTML copies caller-supplied markup. pageURL, when set, resolves
// relative url() references and, with linked_css enabled, linked
// stylesheets.
func (c *Copier) CopyHTML(ctx context.Context, pageURL, pageID, rawHTML string) (*snapshot.Snapshot, error) {
	var base *url.URL
	if pageURL != "" {
		u, err := url.Parse(pageURL)
		if err != nil {
			return nil, fmt.Errorf("pagecopy: page url: %w", err)
		}
		base = u
	}
	switch {
	case pageID != "":
		if err := netguard.ValidateIdentifier(pageID); err != nil {
			return nil, fmt.Errorf("pagecopy: page id: %w", err)
		}
	case base != nil && base.Host != "":
		pageID = PageIDFor(base)
	}

	doc, err := html.Parse(strings.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("pagecopy: parse: %w", err)
	}
	opts := []cascade.Option{cascade.WithLogger(c.logger)}
	if base != nil {
		opts = append(opts, cascade.WithBaseURL(base))
		if c.cfg.Copy.LinkedCSS {
			opts = append(opts, cascade.WithSheetLoader(c.fetch.SheetLoader(ctx, base)))
		}
	}

	snap, err := c.build(Request{URL: pageURL, PageID: pageID}, snapshot.SourceInline, doc, cascade.New(doc, opts...), pageURL)
	if err != nil {
		return nil, err
	}
	c.emit(ctx, snap)
	return snap, nil
}

const maxPageIDLen = 128

// PageIDFor names a page after its host and path:
// "https://example.com/blog/post?x=1" gives "example-com-blog-post".
func PageIDFor(u *url.URL) string {
	id := slug.Make(u.Hostname() + " " + u.Path)
	if len(id) > maxPageIDLen {
		id = strings.TrimRight(id[:maxPageIDLen], "-_")
	}
	return id
}

// blocked reports whether err comes from the URL policy. Such fetches are
// not retried in the browser, which applies the same policy.
func blocked(err error) bool {
	return errors.Is(err, netguard.ErrPrivateAddress) || errors.Is(err, netguard.ErrUnsafeScheme)
}

// Close shuts Chrome down and closes the sinks.
func (c *Copier) Close() error {
	return errors.Join(c.mgr.Close(), c.sinkR.Close())
}

func (c *Copier) fromPage(ctx context.Context, req Request, page *fetcher.Page) (*snapshot.Snapshot, error) {
	doc, err := html.Parse(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("pagecopy: parse: %w", err)
	}
	opts := []cascade.Option{cascade.WithBaseURL(page.URL), cascade.WithLogger(c.logger)}
	if c.cfg.Copy.LinkedCSS {
		opts = append(opts, cascade.WithSheetLoader(c.fetch.SheetLoader(ctx, page.URL)))
	}
	return c.build(req, snapshot.SourceHTTP, doc, cascade.New(doc, opts...), page.URL.String())
}

func (c *Copier) fromBrowser(ctx context.Context, req Request) (*snapshot.Snapshot, error) {
	if c.cfg.Browser.Disable {
		return nil, ErrBrowserDisabled
	}
	tab, err := browser.OpenTab(ctx, c.mgr, req.URL)
	if err != nil {
		return nil, fmt.Errorf("pagecopy: %w", err)
	}
	defer tab.Close()

	capt, err := tab.Capture(ctx, c.props)
	if err != nil {
		return nil, fmt.Errorf("pagecopy: %w", err)
	}
	doc, err := html.Parse(strings.NewReader(capt.HTML))
	if err != nil {
		return nil, fmt.Errorf("pagecopy: parse: %w", err)
	}

	res := styleclone.NewTreeResolver(doc, c.props, capt.Body)
	if n := capt.Body.Count(); res.Paired() != n {
		// Scripts can build trees the HTML parser would not, e.g. a <div>
		// inside a <p>. Unpaired elements are copied without styles.
		c.logger.Warn("pagecopy: live tree and parsed markup differ",
			"url", req.URL, "captured", n, "paired", res.Paired())
	}
	return c.build(req, snapshot.SourceBrowser, doc, res, req.URL)
}

func (c *Copier) build(req Request, src snapshot.Source, doc *html.Node, res styleclone.Resolver, base string) (*snapshot.Snapshot, error) {
	clone, rep, err := styleclone.CloneReport(doc, res, c.rules)
	if err != nil {
		return nil, err
	}
	if c.cfg.Copy.Sanitize {
		if err := sanitize(c.sanitize, clone); err != nil {
			return nil, fmt.Errorf("pagecopy: sanitize: %w", err)
		}
	}
	out, err := styleclone.OuterHTML(clone)
	if err != nil {
		return nil, err
	}

	snap := &snapshot.Snapshot{
		ID:        idgen.Snapshot(),
		PageURL:   req.URL,
		PageID:    req.PageID,
		Source:    src,
		HTML:      out,
		HTMLHash:  snapshot.HashHTML(out),
		Rules:     c.props,
		Styled:    rep.Styled,
		Timestamp: c.now().UnixMilli(),
	}

	if c.cfg.Copy.Markdown {
		var text string
		if base != "" {
			text, err = c.md.ConvertString(out, converter.WithDomain(base))
		} else {
			text, err = c.md.ConvertString(out)
		}
		if err != nil {
			c.logger.Warn("pagecopy: markdown failed", "id", snap.ID, "error", err)
		} else {
			snap.Markdown = text
		}
	}

	c.logger.Info("pagecopy: copied",
		"id", snap.ID, "url", snap.PageURL, "source", src,
		"visited", rep.Visited, "styled", rep.Styled, "size", len(out))
	return snap, nil
}

func (c *Copier) emit(ctx context.Context, snap *snapshot.Snapshot) {
	if c.sinkR.Len() == 0 {
		return
	}
	if err := c.sinkR.SendSnapshot(ctx, snap); err != nil {
		c.logger.Error("pagecopy: emit failed", "id", snap.ID, "error", err)
	}
}
