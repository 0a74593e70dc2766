package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/sidekick/styleclone"
)

// Tab is one navigated page.
type Tab struct {
	Page    *rod.Page
	PageURL string

	mgr    *Manager
	router *rod.HijackRouter
}

// OpenTab acquires the browser, opens a tab and navigates to pageURL.
func OpenTab(ctx context.Context, mgr *Manager, pageURL string) (*Tab, error) {
	b, err := mgr.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	var page *rod.Page
	if mgr.cfg.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{URL: ""})
	}
	if err != nil {
		mgr.Release()
		return nil, fmt.Errorf("browser: create tab: %w", err)
	}

	t := &Tab{Page: page, PageURL: pageURL, mgr: mgr}
	if len(mgr.cfg.ResourceBlocking) > 0 || mgr.cfg.URLCheck != nil {
		t.router = hijack(ctx, page, mgr.cfg)
	}

	navCtx, cancel := context.WithTimeout(ctx, mgr.cfg.NavTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		t.Close()
		return nil, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		mgr.cfg.Logger.Warn("browser: wait load timeout", "url", pageURL, "error", err)
	}
	return t, nil
}

// Capture is the live document at one instant: its markup and the computed
// values of the requested properties for every element from <body> down.
type Capture struct {
	HTML string                `json:"html"`
	Body *styleclone.StyleTree `json:"body"`
}

// captureJS serialises the document and walks <body> with
// getComputedStyle in the same pass, so markup and styles agree.
const captureJS = `(props) => {
	const walk = (el) => {
		const cs = getComputedStyle(el);
		const node = {s: props.map((p) => cs.getPropertyValue(p))};
		const kids = Array.from(el.children).map(walk);
		if (kids.length) node.c = kids;
		return node;
	};
	const body = document.body;
	return JSON.stringify({
		html: document.documentElement.outerHTML,
		body: body ? walk(body) : null,
	});
}`

// Capture reads the document and computed styles for props.
func (t *Tab) Capture(ctx context.Context, props []string) (*Capture, error) {
	res, err := t.Page.Context(ctx).Eval(captureJS, props)
	if err != nil {
		return nil, fmt.Errorf("browser: capture: %w", err)
	}
	var c Capture
	if err := json.Unmarshal([]byte(res.Value.Str()), &c); err != nil {
		return nil, fmt.Errorf("browser: decode capture: %w", err)
	}
	return &c, nil
}

// Close closes the tab and releases the browser.
func (t *Tab) Close() error {
	if t.router != nil {
		_ = t.router.Stop()
	}
	var err error
	if t.Page != nil {
		err = t.Page.Close()
		t.Page = nil
		t.mgr.Release()
	}
	return err
}
