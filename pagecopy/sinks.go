package pagecopy

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/sidekick/pagecopy/internal/sink"
	"github.com/hazyhaar/sidekick/snapshot"
)

// Sink receives every snapshot a Copier produces.
type Sink = sink.Sink

// NewStdoutSink creates a JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink hands snapshots to fn in-process.
func NewCallbackSink(fn func(ctx context.Context, snap *snapshot.Snapshot) error) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks listed in cfg.
func SinksFromConfig(cfg []SinkConfig, w io.Writer, logger *slog.Logger) ([]Sink, error) {
	out := make([]Sink, 0, len(cfg))
	for _, sc := range cfg {
		switch sc.Type {
		case "stdout":
			out = append(out, NewStdoutSink(w))
		case "webhook":
			if sc.URL == "" {
				return nil, fmt.Errorf("pagecopy: webhook sink without url")
			}
			out = append(out, NewWebhookSink(sc.URL, logger))
		default:
			return nil, fmt.Errorf("pagecopy: unknown sink type %q", sc.Type)
		}
	}
	return out, nil
}
