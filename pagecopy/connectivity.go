package pagecopy

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/sidekick/connectivity"
)

// Operation names registered by RegisterConnectivity.
const (
	OpCopyPage = "copy_page"
	OpCopyHTML = "copy_html"
)

// Handlers returns the copy operations keyed by name. Both answer with the
// JSON snapshot.
func (c *Copier) Handlers() map[string]connectivity.Handler {
	return map[string]connectivity.Handler{
		OpCopyPage: c.handleCopyPage,
		OpCopyHTML: c.handleCopyHTML,
	}
}

// RegisterConnectivity exposes the Copier on router as copy_page and
// copy_html, each wrapped in mws.
func (c *Copier) RegisterConnectivity(router *connectivity.Router, mws ...connectivity.HandlerMiddleware) {
	wrap := connectivity.Chain(mws...)
	for op, h := range c.Handlers() {
		router.RegisterLocal(op, wrap(h))
	}
}

// handleCopyPage payload: {"url": "...", "page_id": "...", "level": "auto"}
func (c *Copier) handleCopyPage(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		URL    string `json:"url"`
		PageID string `json:"page_id"`
		Level  string `json:"level"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &connectivity.ErrInvalidPayload{Service: OpCopyPage, Cause: err}
	}
	if req.URL == "" {
		return nil, &connectivity.ErrInvalidPayload{Service: OpCopyPage, Cause: fmt.Errorf("url is required")}
	}
	var level Level
	if req.Level != "" {
		l, err := ParseLevel(req.Level)
		if err != nil {
			return nil, &connectivity.ErrInvalidPayload{Service: OpCopyPage, Cause: err}
		}
		level = l
	}

	snap, err := c.Copy(ctx, Request{URL: req.URL, PageID: req.PageID, Level: level})
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}

// handleCopyHTML payload: {"html": "...", "url": "...", "page_id": "..."}
func (c *Copier) handleCopyHTML(ctx context.Context, payload []byte) ([]byte, error) {
	var req struct {
		HTML   string `json:"html"`
		URL    string `json:"url"`
		PageID string `json:"page_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, &connectivity.ErrInvalidPayload{Service: OpCopyHTML, Cause: err}
	}
	if req.HTML == "" {
		return nil, &connectivity.ErrInvalidPayload{Service: OpCopyHTML, Cause: fmt.Errorf("html is required")}
	}

	snap, err := c.CopyHTML(ctx, req.URL, req.PageID, req.HTML)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snap)
}
