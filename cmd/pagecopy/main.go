// Command pagecopy makes one style-preserving copy and prints it.
//
// Usage:
//
//	pagecopy -url https://example.com              # snapshot JSON on stdout
//	pagecopy -url https://example.com -out html    # the copied document only
//	pagecopy -file page.html -base https://example.com/
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hazyhaar/sidekick/pagecopy"
	"github.com/hazyhaar/sidekick/snapshot"
)

func main() {
	configPath := flag.String("config", "", "path to sidekick.yaml")
	pageURL := flag.String("url", "", "page to copy")
	file := flag.String("file", "", `HTML file to copy ("-" reads stdin)`)
	base := flag.String("base", "", "base URL for -file")
	level := flag.String("level", "", "auto, http or browser (default from config)")
	pageID := flag.String("page-id", "", "identifier stored with the snapshot")
	out := flag.String("out", "json", "output: json, html or markdown")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Parse()

	var lvl slog.Level
	switch *logLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelWarn
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if (*pageURL == "") == (*file == "") {
		fmt.Fprintln(os.Stderr, "usage: pagecopy -url <url> | -file <path> [-base <url>]")
		os.Exit(2)
	}

	snap, err := run(ctx, logger, *configPath, *pageURL, *file, *base, *level, *pageID)
	if err != nil {
		logger.Error("pagecopy: fatal", "error", err)
		os.Exit(1)
	}
	if err := write(os.Stdout, snap, *out); err != nil {
		logger.Error("pagecopy: write", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, pageURL, file, base, level, pageID string) (*snapshot.Snapshot, error) {
	cfg := pagecopy.DefaultConfig()
	if configPath != "" {
		loaded, err := pagecopy.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	// Configured sinks still receive the copy; stdout is reserved for -out.
	sinks, err := pagecopy.SinksFromConfig(cfg.Sinks, os.Stderr, logger)
	if err != nil {
		return nil, err
	}

	c, err := pagecopy.New(cfg, logger, pagecopy.WithSinks(sinks...))
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if file != "" {
		var data []byte
		if file == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return c.CopyHTML(ctx, base, pageID, string(data))
	}

	l, err := pagecopy.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if level == "" {
		l = ""
	}
	return c.Copy(ctx, pagecopy.Request{URL: pageURL, PageID: pageID, Level: l})
}

func write(w io.Writer, snap *snapshot.Snapshot, format string) error {
	switch format {
	case "html":
		_, err := io.WriteString(w, snap.HTML+"\n")
		return err
	case "markdown", "md":
		if snap.Markdown == "" {
			return fmt.Errorf("no markdown: enable copy.markdown in the config")
		}
		_, err := io.WriteString(w, snap.Markdown+"\n")
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	default:
		return fmt.Errorf("unknown output %q", format)
	}
}
