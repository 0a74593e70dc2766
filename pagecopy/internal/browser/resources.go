package browser

import (
	"context"
	"net/url"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// hijack intercepts every request of page. Requests of the blocked types,
// and http(s) requests rejected by cfg.URLCheck, fail as blocked by client.
// The returned router must be stopped when the tab closes.
func hijack(ctx context.Context, page *rod.Page, cfg Config) *rod.HijackRouter {
	blockSet := make(map[string]bool, len(cfg.ResourceBlocking))
	for _, t := range cfg.ResourceBlocking {
		blockSet[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()
	router.MustAdd("*", func(h *rod.Hijack) {
		rawURL := h.Request.URL().String()
		if err := checkRequest(ctx, cfg.URLCheck, rawURL); err != nil {
			cfg.Logger.Warn("browser: request blocked", "url", rawURL, "error", err)
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		if shouldBlock(blockSet, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})
	go router.Run()
	return router
}

// checkRequest applies check to http and https URLs. data:, blob: and
// other in-page schemes never reach the network and pass.
func checkRequest(ctx context.Context, check func(context.Context, string) error, rawURL string) error {
	if check == nil {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return check(ctx, rawURL)
	default:
		return nil
	}
}

// shouldBlock maps CDP resource types onto config names. Stylesheets are
// never blocked: the capture reads computed styles.
func shouldBlock(blockSet map[string]bool, resType string) bool {
	switch lower := strings.ToLower(resType); lower {
	case "image":
		return blockSet["images"]
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "stylesheet":
		return false
	default:
		return blockSet[lower]
	}
}
