package connectivity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/sidekick/netguard"
)

const maxHTTPResponseBody int64 = 32 << 20

type httpConfig struct {
	TimeoutMs   int64  `json:"timeout_ms"`
	ContentType string `json:"content_type"`
}

// HTTPOption configures HTTPFactory.
type HTTPOption func(*httpFactory)

type httpFactory struct {
	policy netguard.Policy
	client *http.Client
}

// WithHTTPPolicy replaces the endpoint URL policy. The default rejects
// private and loopback endpoints.
func WithHTTPPolicy(p netguard.Policy) HTTPOption {
	return func(f *httpFactory) { f.policy = p }
}

// WithHTTPClient sets the client used for every route. Per-route
// timeout_ms still applies through the request context.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *httpFactory) { f.client = c }
}

// HTTPFactory builds handlers that POST the payload to a remote endpoint,
// typically another sidekickd's /api/call/{operation}. The endpoint is
// checked against the URL policy when the route is set.
//
//	router.RegisterTransport("http", connectivity.HTTPFactory())
func HTTPFactory(opts ...HTTPOption) TransportFactory {
	hf := &httpFactory{}
	for _, o := range opts {
		o(hf)
	}
	return func(endpoint string, config json.RawMessage) (Handler, func(), error) {
		if _, err := hf.policy.Check(context.Background(), endpoint); err != nil {
			return nil, nil, fmt.Errorf("connectivity/http: %w", err)
		}

		var cfg httpConfig
		if len(config) > 0 {
			if err := json.Unmarshal(config, &cfg); err != nil {
				return nil, nil, fmt.Errorf("connectivity/http: config: %w", err)
			}
		}
		timeout := 30 * time.Second
		if cfg.TimeoutMs > 0 {
			timeout = time.Duration(cfg.TimeoutMs) * time.Millisecond
		}
		contentType := "application/json"
		if cfg.ContentType != "" {
			contentType = cfg.ContentType
		}

		client := hf.client
		if client == nil {
			client = &http.Client{}
		}

		handler := func(ctx context.Context, payload []byte) ([]byte, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: create request: %w", err)
			}
			req.Header.Set("Content-Type", contentType)

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: do request: %w", err)
			}
			defer resp.Body.Close()

			body, err := netguard.LimitedReadAll(resp.Body, maxHTTPResponseBody)
			if err != nil {
				return nil, fmt.Errorf("connectivity/http: read response: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, fmt.Errorf("connectivity/http: status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
			}
			return body, nil
		}

		closeFn := func() {
			client.CloseIdleConnections()
		}
		return handler, closeFn, nil
	}
}
