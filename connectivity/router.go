// Package connectivity is sidekick's dispatch table: operation names map to
// handlers, and a route per operation decides whether a call runs in this
// process, is forwarded to a remote sidekickd, or is disabled.
//
//	router := connectivity.New()
//	router.RegisterTransport("http", connectivity.HTTPFactory())
//	router.RegisterLocal("block_name", blockNameHandler)
//	router.SetRoute(connectivity.Route{Service: "copy_page", Strategy: "http", Endpoint: "https://worker/api/call/copy_page"})
//
//	resp, err := router.Call(ctx, "block_name", payload)
//
// Names with neither a route nor a local handler fail with
// ErrServiceNotFound; nothing is silently dropped.
package connectivity

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"
)

// Handler is a transport-agnostic operation: JSON payload in, JSON out.
// Local functions and remote clients share this signature.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. The returned
// close function runs when the route is replaced or removed; it may be nil.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Strategies understood by SetRoute besides registered transports.
const (
	StrategyLocal = "local"
	StrategyNoop  = "noop"
)

// Route decides where one operation runs.
type Route struct {
	Service  string          `json:"service" yaml:"service"`
	Strategy string          `json:"strategy" yaml:"strategy"`
	Endpoint string          `json:"endpoint,omitempty" yaml:"endpoint"`
	Config   json.RawMessage `json:"config,omitempty" yaml:"-"`
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	handler Handler
	close   func()
}

// Router dispatches operation calls. Safe for concurrent use.
type Router struct {
	mu            sync.RWMutex
	localHandlers map[string]Handler
	remoteEntries map[string]remoteEntry
	routes        map[string]Route
	factories     map[string]TransportFactory
	logger        *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets a custom logger for the router.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// New creates an empty Router.
func New(opts ...Option) *Router {
	r := &Router{
		localHandlers: make(map[string]Handler),
		remoteEntries: make(map[string]remoteEntry),
		routes:        make(map[string]Route),
		factories:     make(map[string]TransportFactory),
		logger:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers an in-process handler for service, replacing any
// previous one.
func (r *Router) RegisterLocal(service string, h Handler) {
	r.mu.Lock()
	r.localHandlers[service] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for routes whose strategy is
// protocol, e.g. "http".
func (r *Router) RegisterTransport(protocol string, f TransportFactory) {
	r.mu.Lock()
	r.factories[protocol] = f
	r.mu.Unlock()
}

// SetRoute installs or replaces the route of one operation. A route whose
// strategy, endpoint and config are unchanged keeps its remote handler.
//
// Remote routes accept these config keys: timeout_ms, max_retries,
// backoff_ms and fallback_local (retry in-process when the remote fails).
func (r *Router) SetRoute(rt Route) error {
	if rt.Service == "" {
		return fmt.Errorf("connectivity: route without service")
	}
	if rt.Strategy == "" {
		rt.Strategy = StrategyLocal
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	old, hadOld := r.routes[rt.Service]
	if hadOld && old.fingerprint() == rt.fingerprint() {
		return nil
	}

	var entry *remoteEntry
	switch rt.Strategy {
	case StrategyLocal, StrategyNoop:
	default:
		factory, ok := r.factories[rt.Strategy]
		if !ok {
			return &ErrNoFactory{Service: rt.Service, Strategy: rt.Strategy}
		}
		h, closeFn, err := factory(rt.Endpoint, rt.Config)
		if err != nil {
			return &ErrFactoryFailed{Service: rt.Service, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err}
		}
		entry = &remoteEntry{handler: r.wrapRemote(rt, h), close: closeFn}
	}

	if prev, ok := r.remoteEntries[rt.Service]; ok {
		if prev.close != nil {
			prev.close()
		}
		delete(r.remoteEntries, rt.Service)
	}
	if entry != nil {
		r.remoteEntries[rt.Service] = *entry
	}
	r.routes[rt.Service] = rt

	r.logger.Info("route set",
		"service", rt.Service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	return nil
}

// RemoveRoute drops the route of service; calls fall back to the local
// handler, if any.
func (r *Router) RemoveRoute(service string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.remoteEntries[service]; ok && e.close != nil {
		e.close()
	}
	delete(r.remoteEntries, service)
	delete(r.routes, service)
}

// wrapRemote applies the retry and fallback settings of rt's config.
func (r *Router) wrapRemote(rt Route, h Handler) Handler {
	rc := parseRouteConfig(rt.Config)
	var mws []HandlerMiddleware
	if rc.FallbackLocal {
		if local := r.localHandlers[rt.Service]; local != nil {
			mws = append(mws, WithFallback(local, rt.Service, r.logger))
		}
	}
	if rc.MaxRetries > 0 {
		backoff := time.Duration(rc.BackoffMs) * time.Millisecond
		if backoff <= 0 {
			backoff = 100 * time.Millisecond
		}
		mws = append(mws, WithRetry(rc.MaxRetries, backoff, r.logger))
	}
	if rc.TimeoutMs > 0 {
		mws = append(mws, Timeout(time.Duration(rc.TimeoutMs)*time.Millisecond))
	}
	return Chain(mws...)(h)
}

// Call runs service. Resolution order:
//  1. noop route: succeeds with a nil result;
//  2. remote route: the transport handler;
//  3. local handler;
//  4. ErrServiceNotFound.
func (r *Router) Call(ctx context.Context, service string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remoteEntries[service]
	localH := r.localHandlers[service]
	rt, hasRoute := r.routes[service]
	r.mu.RUnlock()

	if hasRoute && rt.Strategy == StrategyNoop {
		r.logger.DebugContext(ctx, "routing noop", "service", service)
		return nil, nil
	}
	if hasRemote {
		r.logger.DebugContext(ctx, "routing remote",
			"service", service, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
		return entry.handler(ctx, payload)
	}
	if localH != nil {
		r.logger.DebugContext(ctx, "routing local", "service", service)
		return localH(ctx, payload)
	}
	return nil, &ErrServiceNotFound{Service: service}
}

// Services lists every routable operation name, sorted.
func (r *Router) Services() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.localHandlers)+len(r.routes))
	for name := range r.localHandlers {
		names = append(names, name)
	}
	for name := range r.routes {
		if _, dup := r.localHandlers[name]; !dup {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}

// Routes returns the installed routes, sorted by service.
func (r *Router) Routes() []Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Route, 0, len(r.routes))
	for _, rt := range r.routes {
		out = append(out, rt)
	}
	slices.SortFunc(out, func(a, b Route) int {
		switch {
		case a.Service < b.Service:
			return -1
		case a.Service > b.Service:
			return 1
		}
		return 0
	})
	return out
}

// Close shuts down all remote handlers and forgets every route.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.remoteEntries {
		if entry.close != nil {
			entry.close()
		}
	}
	r.remoteEntries = make(map[string]remoteEntry)
	r.routes = make(map[string]Route)
	return nil
}

type routeConfig struct {
	TimeoutMs     int64 `json:"timeout_ms"`
	MaxRetries    int   `json:"max_retries"`
	BackoffMs     int64 `json:"backoff_ms"`
	FallbackLocal bool  `json:"fallback_local"`
}

func parseRouteConfig(cfg json.RawMessage) routeConfig {
	var rc routeConfig
	if len(cfg) > 0 {
		_ = json.Unmarshal(cfg, &rc)
	}
	return rc
}
