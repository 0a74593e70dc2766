// Package fetcher implements the HTTP acquisition path: one GET for the
// page, plus optional GETs for its same-origin stylesheets. No browser,
// no JavaScript.
package fetcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	maxPageBytes  = 10 << 20
	maxSheetBytes = 2 << 20
	maxRedirects  = 5
)

// URLCheck vets a URL before it is requested.
type URLCheck func(ctx context.Context, rawURL string) error

// Page is the outcome of an HTTP fetch.
type Page struct {
	URL         *url.URL // final URL after redirects
	Body        []byte
	StatusCode  int
	ContentType string
	Sufficient  bool // enough server-rendered content to skip the browser
}

// Fetcher performs HTTP GETs.
type Fetcher struct {
	client *http.Client
	ua     string
	check  URLCheck
	logger *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient sets a custom HTTP client.
func WithClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.ua = ua }
}

// WithURLCheck vets every redirect target and stylesheet URL with check.
func WithURLCheck(check URLCheck) Option {
	return func(f *Fetcher) { f.check = check }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) { f.logger = l }
}

// New creates a Fetcher with sensible defaults. Redirects are capped at
// five hops and each target goes through the URL check.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: &http.Client{Timeout: 30 * time.Second},
		ua:     "Mozilla/5.0 (compatible; Sidekick/1.0)",
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(f)
	}

	client := *f.client
	next := client.CheckRedirect
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("fetcher: too many redirects (%d)", len(via))
		}
		if f.check != nil {
			if err := f.check(req.Context(), req.URL.String()); err != nil {
				return fmt.Errorf("fetcher: redirect to %s blocked: %w", req.URL.Redacted(), err)
			}
		}
		if next != nil {
			return next(req, via)
		}
		return nil
	}
	f.client = &client
	return f
}

// Fetch GETs pageURL. Non-2xx answers are errors: a copy of an error page
// is never what the caller asked for.
func (f *Fetcher) Fetch(ctx context.Context, pageURL string) (*Page, error) {
	resp, err := f.get(ctx, pageURL, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetcher: %s: status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, fmt.Errorf("fetcher: read body: %w", err)
	}

	p := &Page{
		URL:         resp.Request.URL,
		Body:        body,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Sufficient:  IsSufficient(body),
	}
	f.logger.Debug("fetcher: fetched",
		"url", pageURL, "status", resp.StatusCode,
		"size", len(body), "sufficient", p.Sufficient)
	return p, nil
}

// SheetLoader returns a function that resolves stylesheet hrefs against
// base and fetches them. Cross-origin sheets are skipped.
func (f *Fetcher) SheetLoader(ctx context.Context, base *url.URL) func(href string) (string, bool) {
	return func(href string) (string, bool) {
		u, err := base.Parse(href)
		if err != nil || !sameOrigin(base, u) {
			f.logger.Debug("fetcher: stylesheet skipped", "href", href)
			return "", false
		}
		if f.check != nil {
			if err := f.check(ctx, u.String()); err != nil {
				f.logger.Warn("fetcher: stylesheet blocked", "href", u.String(), "error", err)
				return "", false
			}
		}
		resp, err := f.get(ctx, u.String(), "text/css,*/*;q=0.1")
		if err != nil {
			f.logger.Debug("fetcher: stylesheet", "href", u.String(), "error", err)
			return "", false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return "", false
		}
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxSheetBytes))
		if err != nil {
			return "", false
		}
		return string(body), true
	}
}

func (f *Fetcher) get(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetcher: new request: %w", err)
	}
	req.Header.Set("User-Agent", f.ua)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetcher: do: %w", err)
	}
	return resp, nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
