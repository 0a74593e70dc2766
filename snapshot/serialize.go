package snapshot

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Marshal serialises a Snapshot to JSON.
func Marshal(s *Snapshot) ([]byte, error) {
	return json.Marshal(s)
}

// Unmarshal deserialises a Snapshot from JSON.
func Unmarshal(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// HashHTML returns the SHA-256 hex digest of markup.
func HashHTML(html string) string {
	h := sha256.Sum256([]byte(html))
	return fmt.Sprintf("%x", h)
}
