package sink

import (
	"context"

	"github.com/hazyhaar/sidekick/snapshot"
)

// SnapshotFunc is called for each snapshot.
type SnapshotFunc func(ctx context.Context, snap *snapshot.Snapshot) error

// Callback hands snapshots to a Go function, no serialisation. sidekickd
// uses it to persist copies in the store.
type Callback struct {
	fn SnapshotFunc
}

// NewCallback creates a Callback sink. A nil fn drops every snapshot.
func NewCallback(fn SnapshotFunc) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) SendSnapshot(ctx context.Context, snap *snapshot.Snapshot) error {
	if c.fn == nil {
		return nil
	}
	return c.fn(ctx, snap)
}

func (c *Callback) Close() error { return nil }
