// Package sink defines output backends for page copies.
package sink

import (
	"context"

	"github.com/hazyhaar/sidekick/snapshot"
)

// Sink receives every snapshot a Copier produces. Implementations deliver
// to stdout, a webhook, the snapshot store or an in-process callback.
type Sink interface {
	SendSnapshot(ctx context.Context, snap *snapshot.Snapshot) error
	Close() error
}

type envelope struct {
	Type string             `json:"type"`
	Data *snapshot.Snapshot `json:"data"`
}
