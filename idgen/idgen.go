// Package idgen generates the identifiers sidekick hands out: snapshot IDs,
// request IDs on the dispatch path and MCP calls.
package idgen

import "github.com/google/uuid"

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUIDv7 strings. They sort by
// creation time, which the snapshot store relies on for listing order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

var (
	// Snapshot names page copies: "snap_<uuidv7>".
	Snapshot = Prefixed("snap_", UUIDv7())

	// Request names dispatch messages that arrive without an id.
	Request = Prefixed("req_", UUIDv7())

	// Call names audit entries of operation calls.
	Call = Prefixed("call_", UUIDv7())
)
