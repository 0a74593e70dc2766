// Command sidekickd serves the sidekick operations (block naming, page
// copies, snapshot history) over HTTP and MCP.
//
// Usage:
//
//	sidekickd -config sidekick.yaml       # HTTP API + streamable MCP on /mcp
//	sidekickd -config sidekick.yaml -mcp stdio
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sidekick/audit"
	"github.com/hazyhaar/sidekick/connectivity"
	"github.com/hazyhaar/sidekick/netguard"
	"github.com/hazyhaar/sidekick/pagecopy"
	"github.com/hazyhaar/sidekick/shield"
	"github.com/hazyhaar/sidekick/store"
	"github.com/hazyhaar/sidekick/tools"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to sidekick.yaml (defaults apply when empty)")
	addr := flag.String("addr", "", "listen address, overrides server.addr")
	mcpMode := flag.String("mcp", "", `"stdio" serves MCP on stdin/stdout instead of HTTP`)
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout belongs to the MCP stdio transport.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, *configPath, *addr, *mcpMode); err != nil {
		logger.Error("sidekickd: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, addr, mcpMode string) error {
	cfg := pagecopy.DefaultConfig()
	if configPath != "" {
		loaded, err := pagecopy.LoadConfigFile(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	a, err := setup(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch mcpMode {
	case "stdio":
		logger.Info("sidekickd: mcp on stdio", "version", version)
		if err := a.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
			return fmt.Errorf("mcp stdio: %w", err)
		}
		return nil
	case "", "http":
	default:
		return fmt.Errorf("unknown -mcp mode %q", mcpMode)
	}

	var rl *shield.RateLimiter
	if lim := cfg.Server.RateLimit; lim.Requests > 0 {
		rl = shield.NewRateLimiter(lim.Requests, lim.Window, logger, "/health")
		go rl.Run(ctx)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newHandler(a.router, a.mcp, rl, logger),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("sidekickd: listening", "addr", cfg.Server.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("sidekickd: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("sidekickd: shutdown", "error", err)
	}
	return nil
}

// app holds the wired components of one sidekickd instance.
type app struct {
	router *connectivity.Router
	copier *pagecopy.Copier
	store  *store.Store
	calls  *audit.Logger
	mcp    *mcp.Server
}

// setup opens the store, builds the Copier with its sinks, registers every
// operation and applies the configured routes.
func setup(cfg *pagecopy.Config, logger *slog.Logger) (*app, error) {
	a := &app{}

	sinks, err := pagecopy.SinksFromConfig(cfg.Sinks, os.Stdout, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Server.DBPath != "" {
		st, err := store.Open(cfg.Server.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		st.KeepPerPage = cfg.Server.KeepPerPage
		a.store = st
		sinks = append(sinks, pagecopy.NewCallbackSink(st.Save))

		if err := audit.Init(st.DB); err != nil {
			a.Close()
			return nil, err
		}
		a.calls = audit.New(st.DB, 1000, logger)
	}

	a.copier, err = pagecopy.New(cfg, logger, pagecopy.WithSinks(sinks...))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("copier: %w", err)
	}

	a.router = connectivity.New(connectivity.WithLogger(logger))
	a.router.RegisterTransport("http", connectivity.HTTPFactory(
		connectivity.WithHTTPPolicy(netguard.Policy{AllowPrivate: cfg.Copy.AllowPrivate}),
	))

	svc := &tools.Service{Copier: a.copier, Store: a.store, Audit: a.calls, Logger: logger, CallTimeout: cfg.Server.CallTimeout}
	svc.Register(a.router)

	for _, rc := range cfg.Routes {
		rt := connectivity.Route{Service: rc.Service, Strategy: rc.Strategy, Endpoint: rc.Endpoint}
		if len(rc.Config) > 0 {
			raw, err := json.Marshal(rc.Config)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("route %s: config: %w", rc.Service, err)
			}
			rt.Config = raw
		}
		if err := a.router.SetRoute(rt); err != nil {
			a.Close()
			return nil, fmt.Errorf("route %s: %w", rc.Service, err)
		}
	}

	a.mcp = mcp.NewServer(&mcp.Implementation{Name: "sidekick", Version: version}, nil)
	tools.RegisterMCP(a.mcp, a.router, logger)
	return a, nil
}

// Close releases the router, the Copier (Chrome and sinks), the call log
// and the store, in that order.
func (a *app) Close() error {
	var errs []error
	if a.router != nil {
		errs = append(errs, a.router.Close())
	}
	if a.copier != nil {
		errs = append(errs, a.copier.Close())
	}
	if a.calls != nil {
		errs = append(errs, a.calls.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
