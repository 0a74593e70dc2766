package store

// Schema is the DDL of the snapshot store.
const Schema = `
CREATE TABLE IF NOT EXISTS snapshots (
    id          TEXT PRIMARY KEY,
    page_url    TEXT NOT NULL,
    page_id     TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL,
    html        TEXT NOT NULL,
    html_hash   TEXT NOT NULL,
    markdown    TEXT NOT NULL DEFAULT '',
    rules       TEXT NOT NULL DEFAULT '[]',
    styled      INTEGER NOT NULL DEFAULT 0,
    created_at  INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_page ON snapshots(page_url, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_hash ON snapshots(html_hash);
`
