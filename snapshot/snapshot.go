// Package snapshot defines the style-preserving page copy emitted by
// pagecopy. Consumers (the sidekickd API, MCP tools, sinks, the store)
// import this package to receive and persist copies.
package snapshot

// Source records how the computed styles of a copy were obtained.
type Source string

const (
	SourceHTTP    Source = "http"    // fetched markup, styles from the static cascade
	SourceBrowser Source = "browser" // live page, styles from getComputedStyle
	SourceInline  Source = "inline"  // markup supplied by the caller
)

// Snapshot is one detached copy of a page. HTML is the outer HTML of the
// copy's document element with the selected computed styles inlined.
type Snapshot struct {
	ID        string   `json:"id"` // UUIDv7, "snap_" prefixed
	PageURL   string   `json:"page_url"`
	PageID    string   `json:"page_id,omitempty"`
	Source    Source   `json:"source"`
	HTML      string   `json:"html"`
	HTMLHash  string   `json:"html_hash"` // SHA-256 hex of HTML
	Markdown  string   `json:"markdown,omitempty"`
	Rules     []string `json:"rules"`     // copied properties, in rule order
	Styled    int      `json:"styled"`    // elements that received at least one inline value
	Timestamp int64    `json:"timestamp"` // epoch milliseconds
}

// Summary is the listing form of a Snapshot, without the markup.
type Summary struct {
	ID        string `json:"id"`
	PageURL   string `json:"page_url"`
	PageID    string `json:"page_id,omitempty"`
	Source    Source `json:"source"`
	HTMLHash  string `json:"html_hash"`
	Size      int    `json:"size"`
	Timestamp int64  `json:"timestamp"`
}

// Summarize drops the heavy fields of s.
func (s *Snapshot) Summarize() Summary {
	return Summary{
		ID:        s.ID,
		PageURL:   s.PageURL,
		PageID:    s.PageID,
		Source:    s.Source,
		HTMLHash:  s.HTMLHash,
		Size:      len(s.HTML),
		Timestamp: s.Timestamp,
	}
}
